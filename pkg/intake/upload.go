package intake

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/Azure/btumor-intake/pkg/errors"
	"github.com/Azure/btumor-intake/pkg/session"
)

// Rejection reasons reported to metrics
const (
	RejectNoValidFiles = "no_valid_files"
	RejectTooLarge     = "too_large"
	RejectMalformed    = "malformed"
)

// UploadedFile is one accepted part as reported back to the client
type UploadedFile struct {
	SequenceType string `json:"sequence_type"`
	Filename     string `json:"filename"`
	Size         int64  `json:"size"`
}

// stagedFile is a part written to a temp file but not yet committed
type stagedFile struct {
	sequenceType     string
	originalFilename string
	savedFilename    string
	tmpPath          string
	checksum         string
}

// Upload streams the multipart body into the session directory. Parts whose
// form name is not a sequence type, that carry no filename, or whose filename
// fails the extension allow-list are skipped. Nothing is committed unless the
// whole body was read successfully.
func (s *Service) Upload(ctx context.Context, sessionID string, reader *multipart.Reader) ([]UploadedFile, error) {
	if _, err := s.store.Load(ctx, sessionID); err != nil {
		return nil, err
	}
	dir := s.store.Dir(sessionID)

	staged, err := s.stageParts(ctx, dir, reader)
	if err != nil {
		return nil, err
	}
	if len(staged) == 0 {
		s.metrics.UploadRejected(RejectNoValidFiles)
		return nil, errors.Validation(module, "No files were uploaded").
			WithOperation("upload").
			WithContext("session_id", sessionID)
	}

	return s.commit(ctx, sessionID, dir, staged)
}

func (s *Service) stageParts(ctx context.Context, dir string, reader *multipart.Reader) (map[string]*stagedFile, error) {
	staged := make(map[string]*stagedFile)
	discard := func() {
		for _, sf := range staged {
			os.Remove(sf.tmpPath)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			discard()
			return nil, err
		}

		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			discard()
			return nil, s.readError(err)
		}

		// The first accepted part for a slot wins; later ones are drained
		if _, taken := staged[part.FormName()]; taken {
			part.Close()
			continue
		}

		sf, err := s.stagePart(dir, part)
		part.Close()
		if err != nil {
			discard()
			return nil, err
		}
		if sf == nil {
			continue
		}
		staged[sf.sequenceType] = sf
	}
	return staged, nil
}

// stagePart returns nil without error when the part is skipped
func (s *Service) stagePart(dir string, part *multipart.Part) (*stagedFile, error) {
	slot := part.FormName()
	if !s.slots[slot] {
		return nil, nil
	}
	filename := partFilename(part)
	if filename == "" || !hasAllowedExtension(filename, s.allowedExtensions) {
		s.logger.Debug().Str("sequence_type", slot).Str("filename", filename).Msg("Skipping upload part")
		return nil, nil
	}

	saved := SecureFilename(filename)
	if saved == "" {
		saved = "upload"
	}

	tmp, err := os.CreateTemp(dir, ".upload-*.tmp")
	if err != nil {
		return nil, errors.Wrap(err, module, "failed to stage upload").WithOperation("upload")
	}

	sum := newChecksum()
	src := &trackingReader{r: part}
	buf := copyBuffers.Get()
	_, copyErr := io.CopyBuffer(io.MultiWriter(tmp, sum), src, *buf)
	copyBuffers.Put(buf)
	closeErr := tmp.Close()

	if copyErr != nil || closeErr != nil {
		os.Remove(tmp.Name())
		if src.err != nil {
			return nil, s.readError(src.err)
		}
		if copyErr == nil {
			copyErr = closeErr
		}
		return nil, errors.Wrap(copyErr, module, "failed to write upload").WithOperation("upload")
	}

	return &stagedFile{
		sequenceType:     slot,
		originalFilename: filename,
		savedFilename:    slot + "_" + saved,
		tmpPath:          tmp.Name(),
		checksum:         formatChecksum(sum),
	}, nil
}

// commit renames staged files into place and saves the document under the
// session lock
func (s *Service) commit(ctx context.Context, sessionID, dir string, staged map[string]*stagedFile) ([]UploadedFile, error) {
	discard := func() {
		for _, sf := range staged {
			os.Remove(sf.tmpPath)
		}
	}

	release, err := s.locks.acquire(ctx, sessionID)
	if err != nil {
		discard()
		return nil, err
	}
	defer release()

	sess, err := s.store.Load(ctx, sessionID)
	if err != nil {
		discard()
		return nil, err
	}

	now := s.now()
	var (
		superseded []string
		placed     []placedFile
	)
	rollback := func() {
		discard()
		for i := len(placed) - 1; i >= 0; i-- {
			if err := placed[i].undo(); err != nil {
				s.logger.Error().Err(err).Str("session_id", sessionID).Str("path", placed[i].path).Msg("Failed to roll back upload")
			}
		}
	}
	uploaded := make([]UploadedFile, 0, len(staged))

	for _, slot := range s.sequenceTypes {
		sf, ok := staged[slot]
		if !ok {
			continue
		}

		finalPath := filepath.Join(dir, sf.savedFilename)
		pf, err := place(dir, sf.tmpPath, finalPath)
		if err != nil {
			rollback()
			return nil, errors.Wrap(err, module, "failed to store upload").WithOperation("upload")
		}
		placed = append(placed, pf)
		delete(staged, slot)

		info, err := os.Stat(finalPath)
		if err != nil {
			rollback()
			return nil, errors.Wrap(err, module, "failed to stat upload").WithOperation("upload")
		}

		if previous, ok := sess.Files[slot]; ok && previous.FilePath != finalPath {
			superseded = append(superseded, previous.FilePath)
		}

		sess.Files[slot] = session.FileRecord{
			OriginalFilename: sf.originalFilename,
			SavedFilename:    sf.savedFilename,
			FilePath:         finalPath,
			FileSize:         info.Size(),
			UploadedAt:       now,
			Checksum:         sf.checksum,
		}
		uploaded = append(uploaded, UploadedFile{
			SequenceType: slot,
			Filename:     sf.originalFilename,
			Size:         info.Size(),
		})
	}

	sess.Advance(session.StatusFilesUploaded)
	sess.Touch(now)
	if err := s.store.Save(ctx, sess); err != nil {
		rollback()
		return nil, err
	}

	for _, pf := range placed {
		pf.dropBackup()
	}
	for _, path := range superseded {
		if err := s.removeSuperseded(dir, path); err != nil {
			s.logger.Warn().Err(err).Str("session_id", sessionID).Str("path", path).Msg("Failed to remove superseded upload")
		}
	}

	for _, f := range uploaded {
		s.metrics.FileUploaded(f.SequenceType, f.Size)
		s.logger.Info().
			Str("session_id", sessionID).
			Str("sequence_type", f.SequenceType).
			Str("filename", f.Filename).
			Int64("size", f.Size).
			Msg("File uploaded")
	}
	return uploaded, nil
}

// placedFile is a staged blob renamed to its final path. backup holds the
// blob it replaced, if any, until the document is saved.
type placedFile struct {
	path   string
	backup string
}

// place moves tmpPath to finalPath, first setting aside any existing file so
// the move can be undone
func place(dir, tmpPath, finalPath string) (placedFile, error) {
	pf := placedFile{path: finalPath}
	if _, err := os.Lstat(finalPath); err == nil {
		bak, err := os.CreateTemp(dir, ".replaced-*.tmp")
		if err != nil {
			return pf, err
		}
		bak.Close()
		if err := os.Rename(finalPath, bak.Name()); err != nil {
			os.Remove(bak.Name())
			return pf, err
		}
		pf.backup = bak.Name()
	} else if !os.IsNotExist(err) {
		return pf, err
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		if pf.backup != "" {
			os.Rename(pf.backup, finalPath)
		}
		return placedFile{}, err
	}
	return pf, nil
}

// undo restores the state before place
func (pf placedFile) undo() error {
	if pf.backup != "" {
		return os.Rename(pf.backup, pf.path)
	}
	if err := os.Remove(pf.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (pf placedFile) dropBackup() {
	if pf.backup != "" {
		os.Remove(pf.backup)
	}
}

// removeSuperseded deletes a replaced blob, but only inside the session
// directory
func (s *Service) removeSuperseded(dir, path string) error {
	if filepath.Dir(filepath.Clean(path)) != filepath.Clean(dir) {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Service) readError(err error) error {
	var maxErr *http.MaxBytesError
	if stderrors.As(err, &maxErr) {
		s.metrics.UploadRejected(RejectTooLarge)
		return TooLarge(maxErr.Limit)
	}
	s.metrics.UploadRejected(RejectMalformed)
	return errors.Validation(module, "Malformed multipart request body").WithOperation("upload")
}

// TooLarge is the error returned when a body exceeds limit bytes
func TooLarge(limit int64) error {
	return errors.PayloadTooLarge(module, fmt.Sprintf("File too large (max %s)", formatLimit(limit))).
		WithOperation("upload")
}

func formatLimit(limit int64) string {
	const mib = 1024 * 1024
	if limit >= mib && limit%mib == 0 {
		return fmt.Sprintf("%dMB", limit/mib)
	}
	return fmt.Sprintf("%d bytes", limit)
}

// partFilename returns the filename exactly as the client sent it.
// Part.FileName strips directories, which would hide what the client
// actually uploaded from original_filename.
func partFilename(part *multipart.Part) string {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err == nil {
		if name, ok := params["filename"]; ok {
			return name
		}
	}
	return part.FileName()
}

// trackingReader remembers the first read error so it can be told apart from
// write failures after io.Copy
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF && t.err == nil {
		t.err = err
	}
	return n, err
}
