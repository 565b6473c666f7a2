package vectordb

import "time"

// Config wires the Chroma HTTP client.
type Config struct {
	// BaseURL is the store root, e.g. http://localhost:8002.
	BaseURL string
	// APIVersion selects the REST prefix and heartbeat path: "v1" or "v2".
	APIVersion string
	// Timeout bounds one HTTP call.
	Timeout time.Duration
}

func (c *Config) setDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:8002"
	}
	if c.APIVersion == "" {
		c.APIVersion = "v1"
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
}

// Record is one embedded chunk bound for a collection.
type Record struct {
	ID       string
	Vector   []float32
	Content  string
	Metadata map[string]any
}

// Hit is one nearest-neighbor result. Score is similarity in [0,1].
type Hit struct {
	ID       string
	Content  string
	Score    float64
	Metadata map[string]any
}

// WhereDocument filters records by owning document filename.
func WhereDocument(filename string) map[string]any {
	return map[string]any{"document": filename}
}

// WhereDocumentIn filters records to a set of document filenames.
func WhereDocumentIn(filenames []string) map[string]any {
	vals := make([]any, len(filenames))
	for i, f := range filenames {
		vals[i] = f
	}
	return map[string]any{"document": map[string]any{"$in": vals}}
}

// WhereDocumentNotIn excludes records from a set of document filenames.
func WhereDocumentNotIn(filenames []string) map[string]any {
	vals := make([]any, len(filenames))
	for i, f := range filenames {
		vals[i] = f
	}
	return map[string]any{"document": map[string]any{"$nin": vals}}
}
