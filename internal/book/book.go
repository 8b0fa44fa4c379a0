// Package book defines the core domain types shared across the readai
// pipeline: books, their retrievable chunks, and chat threads. These are
// plain data types — all behaviour (retrieval, translation, persistence)
// lives in the packages that operate on them.
package book

import "time"

// Chunk is a unit of retrievable text belonging to exactly one book.
// Chunks are immutable once created except for metadata additions.
type Chunk struct {
	// ID is the stable identifier of this chunk.
	ID string `json:"id"`

	// BookID is the identifier of the owning book.
	BookID string `json:"bookId"`

	// Page is the source page number this chunk was extracted from.
	Page int `json:"page"`

	// Text is the chunk's text content.
	Text string `json:"text"`

	// Embedding is the chunk's embedding vector. May be nil when the chunk
	// has not been embedded yet; the vector index rebuilds it on demand.
	Embedding []float32 `json:"embedding,omitempty"`

	// Metadata holds free-form provenance (e.g. translation origin).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Book is a document plus its ordered chunk collection.
type Book struct {
	// ID is the unique book identifier.
	ID string `json:"id"`

	// Title is the human-readable book title.
	Title string `json:"title"`

	// Chunks is the ordered list of retrievable chunks. Order is stable:
	// derived books (translations) preserve it exactly.
	Chunks []Chunk `json:"chunks"`

	// Metadata holds book-level provenance (source book id, languages, ...).
	Metadata map[string]string `json:"metadata,omitempty"`

	// CreatedAt is when the book entity was created.
	CreatedAt time.Time `json:"createdAt"`
}

// PageCount returns the highest page number referenced by any chunk.
func (b *Book) PageCount() int {
	max := 0
	for _, c := range b.Chunks {
		if c.Page > max {
			max = c.Page
		}
	}
	return max
}

// Role identifies the author of a chat message.
type Role string

const (
	// RoleUser is a message sent by the reader.
	RoleUser Role = "user"
	// RoleAssistant is a message produced by the answering pipeline.
	RoleAssistant Role = "assistant"
)

// ChatMessage is a single turn in a book's conversation thread.
// Threads are append-only ordered sequences of messages.
type ChatMessage struct {
	// Role is the author of the message.
	Role Role `json:"role"`

	// Content is the text of the message.
	Content string `json:"content"`

	// Pages lists the page numbers cited by an assistant message, if any.
	Pages []int `json:"pages,omitempty"`

	// CreatedAt is when the message was persisted.
	CreatedAt time.Time `json:"createdAt"`
}
