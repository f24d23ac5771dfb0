package outbox

import "example.com/studytrack/internal/events"

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	events.TypeActivityLogged: {Schema: activityLoggedSchema},
	events.TypeSessionDeleted: {Schema: sessionDeletedSchema},
	events.TypeUserDeleted:    {Schema: userDeletedSchema},
}

const activityLoggedSchema = `{
  "type": "object",
  "title": "ActivityLogged",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "session_id": {"type": "string"},
    "session_name": {"type": "string"},
    "date": {"type": "string", "format": "date"},
    "duration_minutes": {"type": "integer", "minimum": 0},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "user_id", "session_id", "date", "duration_minutes", "created_at"],
  "additionalProperties": false
}`

const sessionDeletedSchema = `{
  "type": "object",
  "title": "SessionDeleted",
  "properties": {
    "session_id": {"type": "string"},
    "user_id": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["session_id", "user_id", "occurred_at"],
  "additionalProperties": false
}`

const userDeletedSchema = `{
  "type": "object",
  "title": "UserDeleted",
  "properties": {
    "user_id": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "occurred_at"],
  "additionalProperties": false
}`
