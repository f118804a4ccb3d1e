package config

// builtinYAML is the default configuration used when no config file is
// supplied: the five fixed topics for a generic novel book report plus the
// stock tunables from the spec (§6 "Tunables with defaults"). Mirrors
// tarsy's pkg/config/builtin.go pattern of an embedded built-in default.
const builtinYAML = `
total_seconds: 300
collection_window_ms: 800
ticker_period_seconds: 10
max_history_turns: 6

llm:
  model: claude-3-5-haiku-20241022
  temperature: 0.3
  max_tokens: 200

topics:
  - id: theme
    name: Theme
    starter: "What do you think the book was really trying to say?"
    depth_criteria: >
      A deep answer names a specific theme, supports it with a moment from
      the book, and explains why that theme matters to the story.

  - id: characters
    name: Characters
    starter: "Who was your favorite character, and why?"
    depth_criteria: >
      A deep answer describes how the character changes or what drives
      them, not just what they did.

  - id: plot
    name: Plot
    starter: "What was the turning point of the story for you?"
    depth_criteria: >
      A deep answer identifies a specific event, explains what changed
      because of it, and connects it to what came before or after.

  - id: setting
    name: Setting
    starter: "How did the setting shape what happened in the book?"
    depth_criteria: >
      A deep answer explains how a specific place or time period affected
      the characters' choices or the story's mood.

  - id: personal
    name: Personal Reflection
    starter: "Did anything in the book remind you of your own life?"
    depth_criteria: >
      A deep answer draws a specific, honest connection between the book
      and the student's own experience or beliefs.
`

// Builtin returns the default configuration embedded in the binary.
func Builtin() (*Config, error) {
	return Parse([]byte(builtinYAML))
}
