package indexer

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Document is one source file of the manual corpus.
type Document struct {
	ID   string
	Path string
	Text string
}

// sourceExtensions lists the file types picked up when the source path
// is a directory. A source path naming a file directly is read as-is.
var sourceExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
	".text":     true,
}

// discoverDocuments resolves the source path into the document list, in
// a stable order so chunk ids are reproducible across builds of the same
// corpus.
func discoverDocuments(sourcePath string) ([]Document, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("stat source %s: %w", sourcePath, err)
	}

	if !info.IsDir() {
		doc, err := readDocument(sourcePath, filepath.Dir(sourcePath))
		if err != nil {
			return nil, err
		}
		return []Document{doc}, nil
	}

	var paths []string
	err = filepath.WalkDir(sourcePath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			// Skip hidden directories
			if path != sourcePath && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !sourceExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk source %s: %w", sourcePath, err)
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("no source documents under %s", sourcePath)
	}
	sort.Strings(paths)

	docs := make([]Document, 0, len(paths))
	for _, path := range paths {
		doc, err := readDocument(path, sourcePath)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// readDocument loads one file. The document id is the path relative to
// root without its extension, with separators flattened, so the same
// corpus layout always yields the same ids.
func readDocument(path, root string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read source %s: %w", path, err)
	}
	return Document{
		ID:   documentID(path, root),
		Path: path,
		Text: string(data),
	}, nil
}

func documentID(path, root string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return strings.ReplaceAll(rel, string(filepath.Separator), "_")
}
