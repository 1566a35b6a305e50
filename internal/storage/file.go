package storage

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/IshaanNene/newscrawler/internal/types"
)

// --- JSON Storage ---

// JSONStorage writes articles as a JSON array to a file. Each Store
// appends to the array in place and rewrites the closing bracket, so the
// file is a complete array whenever the process stops between batches.
type JSONStorage struct {
	path    string
	file    *os.File
	tailPos int64 // offset of the bytes that close the array
	count   int
	mu      sync.Mutex
	logger  *slog.Logger
}

// NewJSONStorage creates (or truncates) the output file and writes an
// empty array to it.
func NewJSONStorage(outputPath string, logger *slog.Logger) (*JSONStorage, error) {
	f, err := createOutput(outputPath)
	if err != nil {
		return nil, err
	}
	if _, err := f.Write([]byte("[\n]\n")); err != nil {
		f.Close()
		return nil, fmt.Errorf("write JSON header: %w", err)
	}

	return &JSONStorage{
		path:    outputPath,
		file:    f,
		tailPos: 2,
		logger:  logger.With("component", "json_storage"),
	}, nil
}

func (s *JSONStorage) Name() string { return "json" }

// Path returns the output file path.
func (s *JSONStorage) Path() string { return s.path }

func (s *JSONStorage) Store(articles []*types.Article) error {
	if len(articles) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("json storage %s is closed", s.path)
	}

	var buf bytes.Buffer
	for i, a := range articles {
		data, err := json.MarshalIndent(a, "  ", "  ")
		if err != nil {
			return fmt.Errorf("encode JSON: %w", err)
		}
		if s.count > 0 || i > 0 {
			buf.WriteString(",\n")
		}
		buf.WriteString("  ")
		buf.Write(data)
	}
	body := buf.Len()
	buf.WriteString("\n]\n")

	if _, err := s.file.WriteAt(buf.Bytes(), s.tailPos); err != nil {
		return fmt.Errorf("write JSON: %w", err)
	}
	if err := s.file.Truncate(s.tailPos + int64(buf.Len())); err != nil {
		return fmt.Errorf("truncate JSON: %w", err)
	}

	s.tailPos += int64(body)
	s.count += len(articles)
	s.logger.Debug("articles written", "count", len(articles), "total", s.count)
	return nil
}

func (s *JSONStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Sync()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	s.file = nil
	s.logger.Info("JSON written", "path", s.path, "articles", s.count)
	return err
}

// --- JSONL Storage ---

// JSONLStorage writes articles as newline-delimited JSON (one object per line).
type JSONLStorage struct {
	path   string
	file   *os.File
	enc    *json.Encoder
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewJSONLStorage creates a new JSONL file storage (streaming writes).
func NewJSONLStorage(outputPath string, logger *slog.Logger) (*JSONLStorage, error) {
	f, err := createOutput(outputPath)
	if err != nil {
		return nil, err
	}

	return &JSONLStorage{
		path:   outputPath,
		file:   f,
		enc:    json.NewEncoder(f),
		logger: logger.With("component", "jsonl_storage"),
	}, nil
}

func (s *JSONLStorage) Name() string { return "jsonl" }

func (s *JSONLStorage) Store(articles []*types.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range articles {
		if err := s.enc.Encode(a); err != nil {
			return fmt.Errorf("encode JSONL: %w", err)
		}
		s.count++
	}
	return nil
}

func (s *JSONLStorage) Close() error {
	s.logger.Info("JSONL written", "path", s.path, "articles", s.count)
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// --- CSV Storage ---

// csvHeaders is the column order of CSV exports.
var csvHeaders = []string{
	"title", "description", "key_points", "text", "url", "source_domain",
	"date_published", "authors", "keywords", "matched_keywords", "images", "captions",
}

// CSVStorage writes articles as CSV rows. List fields are JSON-encoded.
type CSVStorage struct {
	path   string
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewCSVStorage creates a new CSV file storage and writes the header row.
func NewCSVStorage(outputPath string, logger *slog.Logger) (*CSVStorage, error) {
	f, err := createOutput(outputPath)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeaders); err != nil {
		f.Close()
		return nil, fmt.Errorf("write CSV header: %w", err)
	}
	w.Flush()

	return &CSVStorage{
		path:   outputPath,
		file:   f,
		writer: w,
		logger: logger.With("component", "csv_storage"),
	}, nil
}

func (s *CSVStorage) Name() string { return "csv" }

func (s *CSVStorage) Store(articles []*types.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range articles {
		flat := a.ToFlatMap()
		row := make([]string, len(csvHeaders))
		for i, h := range csvHeaders {
			row[i] = flat[h]
		}
		if err := s.writer.Write(row); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
		s.count++
	}

	s.writer.Flush()
	return s.writer.Error()
}

func (s *CSVStorage) Close() error {
	s.logger.Info("CSV written", "path", s.path, "articles", s.count)
	if s.writer != nil {
		s.writer.Flush()
	}
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// NewFileStorage creates the appropriate file-based storage by type.
func NewFileStorage(storageType, outputPath string, logger *slog.Logger) (Storage, error) {
	switch storageType {
	case "json":
		return NewJSONStorage(outputPath, logger)
	case "jsonl":
		return NewJSONLStorage(outputPath, logger)
	case "csv":
		return NewCSVStorage(outputPath, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}

func createOutput(outputPath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return f, nil
}

// --- Reading and rewriting article files ---

// ReadArticles loads a JSON array article file.
func ReadArticles(path string) ([]*types.Article, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var articles []*types.Article
	if err := json.Unmarshal(data, &articles); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return articles, nil
}

// WriteArticles replaces path with the given articles. The new content is
// written to a temporary file in the same directory and renamed over the
// old one.
func WriteArticles(path string, articles []*types.Article) error {
	if articles == nil {
		articles = []*types.Article{}
	}
	data, err := json.MarshalIndent(articles, "", "  ")
	if err != nil {
		return fmt.Errorf("encode articles: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
