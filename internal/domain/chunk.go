package domain

import "fmt"

// Chunk is a window of a document's tokenized text. SourceFile is always relative
// to the configured PDF directory and slash-separated.
type Chunk struct {
	Text       string `json:"text"`
	SourceFile string `json:"source_file"`
	Index      int    `json:"chunk_index"`
	Tier       Tier   `json:"precision_tier"`
}

// ID identifies a chunk by (source file, position, tier).
func (c Chunk) ID() string {
	return fmt.Sprintf("%s#%d@%s", c.SourceFile, c.Index, c.Tier)
}
