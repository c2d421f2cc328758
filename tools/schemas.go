package tools

import "encoding/json"

// Tool names.
const (
	AwesomeListParserName = "awesome_list_parser"
	WebMetadataName       = "web_metadata"
	VideoMetadataName     = "video_metadata"
	RepositoryReadmeName  = "repository_readme"
)

var urlInputSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "url": {"type": "string", "pattern": "^https?://"}
  },
  "required": ["url"]
}`)

var parserInputSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "url": {"type": "string", "pattern": "^https?://"},
    "max_resources": {"type": "integer", "minimum": 1}
  },
  "required": ["url"]
}`)

var parserOutputSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "topic": {"type": "string"},
    "description": {"type": "string"},
    "language": {"type": "string"},
    "categories": {"type": "array", "items": {"type": "string"}},
    "total_items": {"type": "integer", "minimum": 0},
    "context_summary": {"type": "string"},
    "resources": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "title": {"type": "string"},
          "url": {"type": "string"},
          "description": {"type": "string"},
          "category": {"type": "string", "minLength": 1},
          "position": {"type": "integer", "minimum": 0}
        },
        "required": ["title", "url", "category", "position"]
      }
    }
  },
  "required": ["topic", "categories", "resources", "total_items"]
}`)

// enrichmentOutputSchema is shared by every enrichment tool so the
// orchestrator can read them uniformly.
var enrichmentOutputSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "url": {"type": "string"},
    "kind": {"type": "string", "enum": ["article", "documentation", "video", "repository"]},
    "title": {"type": "string"},
    "description": {"type": "string"},
    "minutes": {"type": "integer", "minimum": 0},
    "word_count": {"type": "integer", "minimum": 0}
  },
  "required": ["url", "kind", "title"]
}`)
