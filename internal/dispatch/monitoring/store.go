package monitoring

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Row is one resource-usage observation for one job.
type Row struct {
	Timestamp   time.Time
	JobId       string
	CpuPercent  float64
	MemoryBytes uint64
	DiskBytes   uint64
}

// Store persists usage rows. The storage format is the store's business;
// the sampler only appends.
type Store interface {
	Append(row Row) error
	Close() error
}

// CSVStore appends rows to a CSV file, creating it with a header when absent.
type CSVStore struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

func OpenCSVStore(filename string) (*CSVStore, error) {
	info, err := os.Stat(filename)
	empty := os.IsNotExist(err) || (err == nil && info.Size() == 0)

	file, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open monitor store %s", filename)
	}
	store := &CSVStore{file: file, writer: csv.NewWriter(file)}
	if empty {
		if err := store.writer.Write([]string{"timestamp", "job_id", "cpu_percent", "memory_bytes", "disk_bytes"}); err != nil {
			_ = file.Close()
			return nil, errors.WithStack(err)
		}
		store.writer.Flush()
	}
	return store, nil
}

func (s *CSVStore) Append(row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.writer.Write([]string{
		row.Timestamp.UTC().Format(time.RFC3339),
		row.JobId,
		strconv.FormatFloat(row.CpuPercent, 'f', 2, 64),
		strconv.FormatUint(row.MemoryBytes, 10),
		strconv.FormatUint(row.DiskBytes, 10),
	})
	if err != nil {
		return errors.WithStack(err)
	}
	s.writer.Flush()
	return errors.WithStack(s.writer.Error())
}

func (s *CSVStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer.Flush()
	return errors.WithStack(s.file.Close())
}
