// Package cli defines the cobra commands of the studytrack binary. Every
// command works against the local-device store of the current profile.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"example.com/studytrack/internal/config"
	"example.com/studytrack/internal/domain"
	"example.com/studytrack/internal/persistence/local"
	"example.com/studytrack/internal/timer"
)

// errNoCurrentUser is returned by profile commands before any user exists.
var errNoCurrentUser = errors.New("no current user; create one with: studytrack user add NAME")

// App carries the dependencies of a CLI invocation. Zero fields fall back to
// the process defaults.
type App struct {
	Version  string
	Out      io.Writer
	Err      io.Writer
	Now      func() time.Time
	Location *time.Location
	DBPath   string

	// Store, when set, is used instead of opening the database at --db.
	Store *local.Store

	// TimerOptions are passed to every focus timer the timer command starts.
	TimerOptions []timer.Option
}

type runtime struct {
	app     App
	dbPath  string
	output  string
	store   *local.Store
	service *domain.Service
	closer  io.Closer
}

// Execute runs the CLI with the process arguments and configuration.
func Execute(version string) error {
	cfg := config.Load()
	return Run(context.Background(), App{
		Version:  version,
		Location: cfg.TimeZone,
		DBPath:   cfg.LocalDBPath,
	}, os.Args[1:])
}

// Run builds the command tree for app and executes it with args.
func Run(ctx context.Context, app App, args []string) error {
	if app.Out == nil {
		app.Out = os.Stdout
	}
	if app.Err == nil {
		app.Err = os.Stderr
	}
	if app.Now == nil {
		app.Now = time.Now
	}
	if app.Location == nil {
		app.Location = time.Local
	}

	rt := &runtime{app: app}
	defer rt.close()

	root := rt.rootCommand()
	root.SetArgs(args)
	root.SetOut(app.Out)
	root.SetErr(app.Err)
	return root.ExecuteContext(ctx)
}

func (rt *runtime) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "studytrack",
		Short: "Track study sessions, streaks and badges",
		Long: `studytrack records time spent on recurring study sessions and reports
daily goals, weekly totals, streaks and milestone badges for each profile.`,
		Version:       rt.app.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rt.open(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&rt.dbPath, "db", rt.app.DBPath, "Path of the local database file")
	root.PersistentFlags().StringVarP(&rt.output, "output", "o", formatText, "Output format: text, json or yaml")

	root.AddCommand(
		rt.userCommand(),
		rt.sessionCommand(),
		rt.logCommand(),
		rt.activitiesCommand(),
		rt.progressCommand(),
		rt.timerCommand(),
		rt.backupCommand(),
	)
	return root
}

func (rt *runtime) open(ctx context.Context) error {
	if err := checkFormat(rt.output); err != nil {
		return err
	}
	if rt.app.Store != nil {
		rt.store = rt.app.Store
	} else {
		if rt.dbPath == "" {
			return errors.New("no database path; set --db or LOCAL_DB_PATH")
		}
		backend, err := local.OpenSQLite(ctx, rt.dbPath)
		if err != nil {
			return err
		}
		store, err := local.Open(ctx, backend)
		if err != nil {
			_ = backend.Close()
			return err
		}
		rt.store, rt.closer = store, backend
	}
	rt.service = domain.NewService(rt.store, domain.WithClock(rt.app.Now))
	return nil
}

func (rt *runtime) close() {
	if rt.closer != nil {
		if err := rt.closer.Close(); err != nil {
			fmt.Fprintf(rt.app.Err, "close database: %v\n", err)
		}
	}
}

func (rt *runtime) profile() (domain.Profile, error) {
	id := rt.store.CurrentUserID()
	if id == "" {
		return domain.Profile{}, errNoCurrentUser
	}
	return domain.Profile{UserID: id}, nil
}

func (rt *runtime) today() domain.Date {
	return domain.Today(rt.app.Location, rt.app.Now())
}

func (rt *runtime) printer() printer {
	return printer{w: rt.app.Out, format: rt.output}
}
