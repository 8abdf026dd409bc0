package playbook

import "time"

// BlockKind distinguishes finding block types.
type BlockKind string

const (
	// KindMarkdown is a block of rendered markdown text.
	KindMarkdown BlockKind = "markdown"

	// KindFile is a named file attachment.
	KindFile BlockKind = "file"
)

// Block is one piece of finding content.
type Block struct {
	Kind     BlockKind `json:"kind"`
	Text     string    `json:"text,omitempty"`
	Filename string    `json:"filename,omitempty"`
	Data     []byte    `json:"data,omitempty"`
}

// MarkdownBlock returns a markdown text block.
func MarkdownBlock(text string) Block {
	return Block{Kind: KindMarkdown, Text: text}
}

// FileBlock returns a file attachment block.
func FileBlock(filename string, data []byte) Block {
	return Block{Kind: KindFile, Filename: filename, Data: data}
}

// Finding is one unit of playbook output, delivered to the configured
// sinks after the run completes.
type Finding struct {
	// Title is a short human-readable summary line.
	Title string `json:"title"`

	// Source identifies what produced the finding, usually the job ID
	// or trigger that started the run.
	Source string `json:"source,omitempty"`

	// Blocks hold the finding content in delivery order.
	Blocks []Block `json:"blocks,omitempty"`

	// CreatedAt is when the finding was recorded.
	CreatedAt time.Time `json:"created_at"`
}
