package outbox

const activityChangedSchema = `{
  "type": "object",
  "title": "ActivityChanged",
  "definitions": {
    "contribution": {
      "type": "object",
      "properties": {
        "date": {"type": "string", "format": "date"},
        "workouts": {"type": "integer"},
        "minutes": {"type": "integer"},
        "calories": {"type": "integer"},
        "distance_m": {"type": "number"}
      },
      "required": ["date", "workouts", "minutes", "calories", "distance_m"],
      "additionalProperties": false
    }
  },
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "kind": {"type": "string", "enum": ["created", "updated", "deleted"]},
    "activity_type": {"type": "string"},
    "before": {"$ref": "#/definitions/contribution"},
    "after": {"$ref": "#/definitions/contribution"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "user_id", "kind", "occurred_at"],
  "additionalProperties": false
}`
