package progress

// Milestone is a streak length that earns a badge.
type Milestone struct {
	ThresholdDays int    `json:"thresholdDays" yaml:"thresholdDays"`
	Title         string `json:"title" yaml:"title"`
	Description   string `json:"description" yaml:"description"`
}

// BadgeStatus is the outcome of evaluating a streak against milestones.
type BadgeStatus struct {
	Earned     []Milestone `json:"earned" yaml:"earned"`
	Next       *Milestone  `json:"next,omitempty" yaml:"next,omitempty"`
	DaysToNext int         `json:"daysToNext,omitempty" yaml:"daysToNext,omitempty"`
}

// DefaultMilestones is the badge ladder shown to users, ascending by threshold.
var DefaultMilestones = []Milestone{
	{ThresholdDays: 7, Title: "Week Warrior", Description: "7 day streak"},
	{ThresholdDays: 30, Title: "Monthly Master", Description: "30 day streak"},
	{ThresholdDays: 90, Title: "Quarterly Champion", Description: "90 day streak"},
	{ThresholdDays: 365, Title: "Yearly Legend", Description: "1 year streak"},
	{ThresholdDays: 730, Title: "2 Year Titan", Description: "2 year streak"},
	{ThresholdDays: 1095, Title: "3 Year Elite", Description: "3 year streak"},
	{ThresholdDays: 1460, Title: "4 Year Prodigy", Description: "4 year streak"},
	{ThresholdDays: 1825, Title: "5 Year Virtuoso", Description: "5 year streak"},
	{ThresholdDays: 2190, Title: "6 Year Grandmaster", Description: "6 year streak"},
	{ThresholdDays: 2555, Title: "7 Year Legend", Description: "7 year streak"},
	{ThresholdDays: 2920, Title: "8 Year Immortal", Description: "8 year streak"},
	{ThresholdDays: 3285, Title: "9 Year Eternal", Description: "9 year streak"},
	{ThresholdDays: 3650, Title: "10 Year Deity", Description: "10 year streak"},
}

// EvaluateBadges splits milestones into those earned by streak and the next
// one to aim for. milestones must be sorted ascending by ThresholdDays.
func EvaluateBadges(streak int, milestones []Milestone) BadgeStatus {
	status := BadgeStatus{Earned: make([]Milestone, 0)}
	for i, m := range milestones {
		if m.ThresholdDays <= streak {
			status.Earned = append(status.Earned, m)
			continue
		}
		if status.Next == nil {
			next := milestones[i]
			status.Next = &next
			status.DaysToNext = next.ThresholdDays - streak
		}
	}
	return status
}
