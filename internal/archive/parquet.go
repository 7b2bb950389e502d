package archive

import (
	"bytes"
	"fmt"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"tradeboard/models"
)

// BarRecord is the parquet row layout of an archived candle.
type BarRecord struct {
	Asset     string  `parquet:"name=asset, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp string  `parquet:"name=timestamp, type=BYTE_ARRAY, convertedtype=UTF8"`
	EpochMs   int64   `parquet:"name=epoch_ms, type=INT64"`
	Open      float64 `parquet:"name=open, type=DOUBLE"`
	High      float64 `parquet:"name=high, type=DOUBLE"`
	Low       float64 `parquet:"name=low, type=DOUBLE"`
	Close     float64 `parquet:"name=close, type=DOUBLE"`
	Volume    float64 `parquet:"name=volume, type=DOUBLE"`
}

// memoryFile is a write-only source.ParquetFile backed by a buffer.
type memoryFile struct {
	buffer *bytes.Buffer
}

func newMemoryFile() *memoryFile {
	return &memoryFile{buffer: &bytes.Buffer{}}
}

func (f *memoryFile) Create(string) (source.ParquetFile, error) { return f, nil }
func (f *memoryFile) Open(string) (source.ParquetFile, error)   { return f, nil }
func (f *memoryFile) Read(b []byte) (int, error)                { return f.buffer.Read(b) }
func (f *memoryFile) Write(b []byte) (int, error)               { return f.buffer.Write(b) }
func (f *memoryFile) Close() error                              { return nil }

// Seek reports the write offset; the parquet writer never seeks backwards.
func (f *memoryFile) Seek(int64, int) (int64, error) {
	return int64(f.buffer.Len()), nil
}

func compressionCodec(name string) parquet.CompressionCodec {
	switch name {
	case "gzip":
		return parquet.CompressionCodec_GZIP
	case "none":
		return parquet.CompressionCodec_UNCOMPRESSED
	default:
		return parquet.CompressionCodec_SNAPPY
	}
}

// encodeBars renders bars as a parquet file. The epoch column is zero for
// time-only timestamps that carry no date.
func encodeBars(bars []models.Bar, compression string) ([]byte, error) {
	fw := newMemoryFile()
	pw, err := writer.NewParquetWriter(fw, new(BarRecord), 1)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = compressionCodec(compression)

	for _, bar := range bars {
		record := BarRecord{
			Asset:     bar.Asset,
			Timestamp: bar.Timestamp,
			Open:      bar.Open,
			High:      bar.High,
			Low:       bar.Low,
			Close:     bar.Close,
			Volume:    bar.Volume,
		}
		if t, err := bar.Time(); err == nil && t.Year() > 0 {
			record.EpochMs = t.UnixMilli()
		}
		if err := pw.Write(record); err != nil {
			_ = pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return fw.buffer.Bytes(), nil
}
