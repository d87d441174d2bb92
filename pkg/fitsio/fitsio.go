// Package fitsio reads and writes single-HDU FITS containers: a
// header of 80-char records in 2880-byte blocks, then big-endian
// pixel data. It understands BITPIX 8/16/32/-32/-64 with
// BZERO/BSCALE on read, and writes float64 (-64) or float32 (-32).
package fitsio

import(
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/obskit/ccdred/pkg/ccd"
)

const recordLen = 80
const blockLen = 2880
const recordsPerBlock = blockLen / recordLen

// ErrNotFITS marks a file that exists but is not a FITS container.
// Distinguish from a missing path with errors.Is(err, fs.ErrNotExist).
var ErrNotFITS = errors.New("not a FITS file")

// Structural keys the reader strips and the writer regenerates, so a
// Frame header never carries stale geometry.
var structural = map[string]bool{
	"SIMPLE": true, "BITPIX": true, "NAXIS": true, "NAXIS1": true,
	"NAXIS2": true, "BZERO": true, "BSCALE": true, "EXTEND": true,
	"END": true,
}

// ReadFrame loads path into a Frame. The file handle is closed on
// every path out.
func ReadFrame(path string) (*ccd.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fits open '%s': %w", path, err)
	}
	defer f.Close()

	frame, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("fits read '%s': %w", path, err)
	}
	frame.Name = path
	return frame, nil
}

func Read(r io.Reader) (*ccd.Frame, error) {
	hdr := ccd.NewHeader()
	bitpix, naxis, width, height := 0, 0, 0, 0
	bzero, bscale := 0.0, 1.0
	sawSimple := false
	headerDone := false

	buf := make([]byte, recordLen)
	for !headerDone {
		for i := 0; i < recordsPerBlock; i++ {
			if _,err := io.ReadFull(r, buf); err != nil {
				if !sawSimple {
					return nil, ErrNotFITS
				}
				return nil, fmt.Errorf("header record: %v", err)
			}
			record := string(buf)
			keyword := strings.TrimSpace(record[:8])

			if !sawSimple {
				if keyword != "SIMPLE" {
					return nil, ErrNotFITS
				}
				sawSimple = true
			}

			if keyword == "END" {
				headerDone = true
				skip := make([]byte, (recordsPerBlock-1-i)*recordLen)
				io.ReadFull(r, skip)
				break
			}

			if len(record) > 10 && record[8] == '=' {
				raw, comment := splitValueComment(record[10:])
				switch keyword {
				case "BITPIX": bitpix, _ = strconv.Atoi(raw)
				case "NAXIS":  naxis, _ = strconv.Atoi(raw)
				case "NAXIS1": width, _ = strconv.Atoi(raw)
				case "NAXIS2": height, _ = strconv.Atoi(raw)
				case "BZERO":  bzero, _ = strconv.ParseFloat(raw, 64)
				case "BSCALE": bscale, _ = strconv.ParseFloat(raw, 64)
				}
				if keyword != "" && !structural[keyword] {
					hdr.SetWithComment(keyword, parseValue(raw), comment)
				}
			}
		}
	}

	if naxis < 2 || width < 1 || height < 1 {
		return nil, fmt.Errorf("%w: NAXIS=%d NAXIS1=%d NAXIS2=%d", ErrNotFITS, naxis, width, height)
	}

	frame := ccd.NewFrame(width, height)
	frame.Header = hdr

	n := width * height
	pix := frame.Pix()

	switch bitpix {
	case 8:
		raw := make([]byte, n)
		if _,err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("8-bit data: %v", err)
		}
		for i := 0; i < n; i++ {
			pix[i] = float64(raw[i])*bscale + bzero
		}
	case 16:
		raw := make([]byte, n*2)
		if _,err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("16-bit data: %v", err)
		}
		for i := 0; i < n; i++ {
			pix[i] = float64(int16(binary.BigEndian.Uint16(raw[i*2:])))*bscale + bzero
		}
	case 32:
		raw := make([]byte, n*4)
		if _,err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("32-bit data: %v", err)
		}
		for i := 0; i < n; i++ {
			pix[i] = float64(int32(binary.BigEndian.Uint32(raw[i*4:])))*bscale + bzero
		}
	case -32:
		raw := make([]byte, n*4)
		if _,err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("float32 data: %v", err)
		}
		for i := 0; i < n; i++ {
			pix[i] = float64(math.Float32frombits(binary.BigEndian.Uint32(raw[i*4:])))*bscale + bzero
		}
	case -64:
		raw := make([]byte, n*8)
		if _,err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("float64 data: %v", err)
		}
		for i := 0; i < n; i++ {
			pix[i] = math.Float64frombits(binary.BigEndian.Uint64(raw[i*8:]))*bscale + bzero
		}
	default:
		return nil, fmt.Errorf("%w: unsupported BITPIX %d", ErrNotFITS, bitpix)
	}

	return frame, nil
}

// WriteFrame stores frame at path as BITPIX -64. Refuses to clobber
// an existing file unless overwrite is set.
func WriteFrame(path string, frame *ccd.Frame, overwrite bool) error {
	return writeFrame(path, frame, overwrite, -64)
}

// WriteFrame32 is WriteFrame at float32 precision, for smaller files.
func WriteFrame32(path string, frame *ccd.Frame, overwrite bool) error {
	return writeFrame(path, frame, overwrite, -32)
}

func writeFrame(path string, frame *ccd.Frame, overwrite bool, bitpix int) error {
	if !overwrite {
		if _,err := os.Stat(path); err == nil {
			return fmt.Errorf("fits write '%s': file already exists", path)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("fits create '%s': %w", path, err)
	}
	defer f.Close()

	if err := write(f, frame, bitpix); err != nil {
		return fmt.Errorf("fits write '%s': %v", path, err)
	}
	return nil
}

func write(w io.Writer, frame *ccd.Frame, bitpix int) error {
	records := []string{
		record("SIMPLE", "T", "conforms to FITS standard"),
		record("BITPIX", strconv.Itoa(bitpix), "array data type"),
		record("NAXIS", "2", "number of array dimensions"),
		record("NAXIS1", strconv.Itoa(frame.Dx()), ""),
		record("NAXIS2", strconv.Itoa(frame.Dy()), ""),
	}
	for _,key := range frame.Header.Keys() {
		if structural[key] {
			continue
		}
		v,_ := frame.Header.Get(key)
		records = append(records, record(key, formatValue(v), frame.Header.Comment(key)))
	}
	records = append(records, fmt.Sprintf("%-80s", "END"))

	for len(records)%recordsPerBlock != 0 {
		records = append(records, strings.Repeat(" ", recordLen))
	}
	for _,rec := range records {
		if _,err := io.WriteString(w, rec); err != nil {
			return err
		}
	}

	pix := frame.Pix()
	var data []byte
	if bitpix == -64 {
		data = make([]byte, len(pix)*8)
		for i,v := range pix {
			binary.BigEndian.PutUint64(data[i*8:], math.Float64bits(v))
		}
	} else {
		data = make([]byte, len(pix)*4)
		for i,v := range pix {
			binary.BigEndian.PutUint32(data[i*4:], math.Float32bits(float32(v)))
		}
	}
	if pad := len(data) % blockLen; pad != 0 {
		data = append(data, make([]byte, blockLen-pad)...)
	}
	_, err := w.Write(data)
	return err
}

// splitValueComment separates "value / comment", respecting quoted
// strings that may themselves contain slashes.
func splitValueComment(s string) (string, string) {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "'") {
		if end := strings.Index(trimmed[1:], "'"); end >= 0 {
			value := trimmed[:end+2]
			rest := strings.TrimSpace(trimmed[end+2:])
			rest = strings.TrimSpace(strings.TrimPrefix(rest, "/"))
			return strings.TrimSpace(value), rest
		}
	}
	parts := strings.SplitN(trimmed, "/", 2)
	value := strings.TrimSpace(parts[0])
	comment := ""
	if len(parts) == 2 {
		comment = strings.TrimSpace(parts[1])
	}
	return value, comment
}

// parseValue maps a raw FITS value to bool, float64 or string.
func parseValue(raw string) interface{} {
	switch raw {
	case "T": return true
	case "F": return false
	case "":  return ""
	}
	if strings.HasPrefix(raw, "'") {
		return strings.TrimRight(strings.Trim(raw, "'"), " ")
	}
	if f,err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case bool:
		if val { return "T" }
		return "F"
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return strconv.FormatFloat(val, 'f', 1, 64)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case string:
		return fmt.Sprintf("'%s'", strings.ReplaceAll(val, "'", "''"))
	default:
		return fmt.Sprintf("'%v'", val)
	}
}

func record(key, value, comment string) string {
	var rec string
	if strings.HasPrefix(value, "'") {
		rec = fmt.Sprintf("%-8s= %-20s", key, value)
	} else {
		rec = fmt.Sprintf("%-8s= %20s", key, value)
	}
	if comment != "" {
		rec += " / " + comment
	}
	if len(rec) > recordLen {
		rec = rec[:recordLen]
	}
	return fmt.Sprintf("%-80s", rec)
}
