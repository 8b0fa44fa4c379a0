// Package rag implements the question-answering pipeline for a book: source
// selection, query planning, retrieval over the book's vector index and chat
// history, and streamed answer synthesis. The Engine is the single public
// entry point; it sequences the components as a state machine and reports
// progress through optional callbacks.
package rag

import (
	"time"

	"github.com/readai-labs/readai-go/internal/book"
)

// ThoughtProcess records one reasoning or progress milestone during a run.
// Append-only; used for UI transparency and debugging, never for control flow.
type ThoughtProcess struct {
	// Stage is the orchestration stage label (e.g. "retrieval").
	Stage string `json:"stage"`
	// Thought is a human-readable description of the milestone.
	Thought string `json:"thought"`
	// Timestamp is when the milestone was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// ToolUse records one retrieval or generation sub-operation.
type ToolUse struct {
	// ToolName identifies the sub-operation (e.g. "vector_search").
	ToolName string `json:"toolName"`
	// Input holds the operation's input parameters.
	Input map[string]any `json:"input"`
	// Output is an optional summary of the operation's result.
	Output string `json:"output,omitempty"`
	// Timestamp is when the operation was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// Snippet is one chat-history match returned by the history search.
type Snippet struct {
	// Index is the message's position in the original, unwindowed history.
	Index int `json:"index"`
	// Role is the author of the matched message.
	Role book.Role `json:"role"`
	// Content is the matched message text.
	Content string `json:"content"`
	// Score is the similarity or keyword score used for ranking.
	Score float32 `json:"score"`
}

// Result is the terminal output of one orchestration run. Immutable after
// return.
type Result struct {
	// Answer is the final synthesized answer text.
	Answer string `json:"answer"`
	// ThoughtProcess is the ordered milestone trace for the run.
	ThoughtProcess []ThoughtProcess `json:"thoughtProcess"`
	// ToolUses is the ordered list of sub-operations performed.
	ToolUses []ToolUse `json:"toolUses"`
	// RelevantChunks are the book passages actually cited.
	RelevantChunks []book.Chunk `json:"relevantChunks"`
	// ChatSnippets are the chat-history matches used, if any.
	ChatSnippets []Snippet `json:"chatSnippets,omitempty"`
}

// Callbacks carries the optional observer hooks for one run. Any field may be
// nil; the Engine never calls a missing callback.
type Callbacks struct {
	// OnThought fires for each ThoughtProcess milestone.
	OnThought func(ThoughtProcess)
	// OnToolUse fires for each recorded sub-operation.
	OnToolUse func(ToolUse)
	// OnProgress fires with short status text at stage boundaries.
	OnProgress func(string)
	// OnToken fires for each normalized answer delta, in emission order.
	OnToken func(string)
	// OnDone fires exactly once when the answer stream completes.
	OnDone func()
}

func (c *Callbacks) thought(tp ThoughtProcess) {
	if c != nil && c.OnThought != nil {
		c.OnThought(tp)
	}
}

func (c *Callbacks) toolUse(tu ToolUse) {
	if c != nil && c.OnToolUse != nil {
		c.OnToolUse(tu)
	}
}

func (c *Callbacks) progress(status string) {
	if c != nil && c.OnProgress != nil {
		c.OnProgress(status)
	}
}

func (c *Callbacks) token(delta string) {
	if c != nil && c.OnToken != nil {
		c.OnToken(delta)
	}
}

func (c *Callbacks) done() {
	if c != nil && c.OnDone != nil {
		c.OnDone()
	}
}
