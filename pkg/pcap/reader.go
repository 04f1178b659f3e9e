package pcap

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"PcapLedger/internal/core/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// SourceUnavailableError is returned when a capture directory is missing or
// holds no capture files.
type SourceUnavailableError struct {
	Path   string
	Reason string
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("capture source %s unavailable: %s", e.Path, e.Reason)
}

const pcapngMagic = 0x0a0d0d0a

// packetSource is satisfied by both pcapgo.Reader and pcapgo.NgReader.
type packetSource interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// Reader reads frames from a pcap or pcapng file.
type Reader struct {
	file     *os.File
	src      packetSource
	name     string
	frames   int
	linkType layers.LinkType
}

// NewReader opens filePath and detects its format from the magic number.
func NewReader(filePath string) (*Reader, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}

	br := bufio.NewReader(f)
	head, err := br.Peek(4)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read header of %s: %w", filePath, err)
	}

	var src packetSource
	if binary.LittleEndian.Uint32(head) == pcapngMagic {
		opts := pcapgo.DefaultNgReaderOptions
		opts.WantMixedLinkType = true
		src, err = pcapgo.NewNgReader(br, opts)
	} else {
		src, err = pcapgo.NewReader(br)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to open %s: %w", filePath, err)
	}

	return &Reader{file: f, src: src, name: filepath.Base(filePath), linkType: src.LinkType()}, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// LinkType reports the link type of the capture. For pcapng, whose
// interfaces may differ, it is the link type of the last frame read.
func (r *Reader) LinkType() layers.LinkType {
	return r.linkType
}

// Next returns the next frame or io.EOF once the file is exhausted.
func (r *Reader) Next() (model.RawFrame, error) {
	data, ci, err := r.src.ReadPacketData()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return model.RawFrame{}, io.EOF
		}
		return model.RawFrame{}, fmt.Errorf("%s: frame %d: %w", r.name, r.frames, err)
	}
	r.frames++
	if len(ci.AncillaryData) > 0 {
		if lt, ok := ci.AncillaryData[0].(layers.LinkType); ok {
			r.linkType = lt
		}
	}

	return model.RawFrame{
		Timestamp:  ci.Timestamp.UTC(),
		Length:     ci.Length,
		Data:       data,
		LinkType:   r.linkType,
		SourceFile: r.name,
	}, nil
}

// ReadFrames reads every frame of the file at path. On a read error the
// frames decoded so far are returned together with the error.
func ReadFrames(path string) ([]model.RawFrame, error) {
	r, err := NewReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var frames []model.RawFrame
	for {
		frame, err := r.Next()
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, frame)
	}
}

// IsCaptureFile reports whether name has a .pcap or .pcapng extension.
func IsCaptureFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pcap", ".pcapng":
		return true
	}
	return false
}

// ListCaptureFiles returns the capture files directly inside dir, sorted by
// name. A missing directory or one without capture files is reported as a
// *SourceUnavailableError.
func ListCaptureFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &SourceUnavailableError{Path: dir, Reason: "directory does not exist"}
		}
		return nil, &SourceUnavailableError{Path: dir, Reason: err.Error()}
	}

	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsCaptureFile(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, &SourceUnavailableError{Path: dir, Reason: "no capture files found"}
	}
	sort.Strings(files)
	return files, nil
}
