package chunker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/colligo/internal/models"
)

// ChunksToJSONL encodes chunks one JSON object per line, the format the
// blob store keeps between the chunking and indexing stages.
func ChunksToJSONL(chunks []models.DocumentChunk) ([]byte, error) {
	var buf bytes.Buffer
	for i, chunk := range chunks {
		line, err := json.Marshal(chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to encode chunk %d: %w", i, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// JSONLToChunks parses JSONL-encoded chunks, skipping blank lines.
func JSONLToChunks(data []byte) ([]models.DocumentChunk, error) {
	var chunks []models.DocumentChunk
	for i, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var chunk models.DocumentChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return nil, fmt.Errorf("invalid chunk on line %d: %w", i+1, err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}
