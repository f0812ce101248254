package pipeline

import "fmt"

// Stage names where a per-file error can occur.
const (
	StageDetect = "detect"
	StageDecode = "decode"
	StageEncode = "encode"
	StageWrite  = "write"
	StageVector = "svg"
	StageVideo  = "video"
	StageUpload = "upload"
	StageHash   = "hash"
	StageMkdir  = "mkdir"
)

// FileError records one recoverable failure for one source file.
type FileError struct {
	Path  string // relative to the source root
	Stage string
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Path, e.Stage, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }
