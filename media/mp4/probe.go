package mp4

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// brands accepted after the ftyp box type
var brands = [][]byte{
	[]byte("isom"),
	[]byte("iso2"),
	[]byte("iso5"),
	[]byte("iso6"),
	[]byte("mp41"),
	[]byte("mp42"),
	[]byte("avc1"),
	[]byte("dash"),
	[]byte("cmfc"),
	[]byte("msdh"),
	[]byte("M4V "),
	[]byte("qt  "),
}

// IsISOBMFF checks the leading ftyp box of data. It needs at least 12 bytes.
func IsISOBMFF(data []byte) (bool, error) {
	if len(data) < 12 {
		return false, fmt.Errorf("data too short to determine file type")
	}
	if !bytes.Equal(data[4:8], []byte("ftyp")) {
		return false, nil
	}
	major := data[8:12]
	for _, b := range brands {
		if bytes.Equal(major, b) {
			return true, nil
		}
	}
	return false, nil
}

// IsISOBMFFFile sniffs the file at path.
func IsISOBMFFFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, 12)
	if _, err := io.ReadFull(f, head); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return false, nil
		}
		return false, err
	}
	return IsISOBMFF(head)
}
