package spool

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-errors/errors"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/matoous/eccentric"
	"github.com/matoous/eccentric/mail"
)

const (
	recordExt = ".msgp"

	// bucketUnknown holds messages without recipients
	bucketUnknown = "_unknown"
	// bucketInvalid holds messages whose first recipient can't be parsed
	bucketInvalid = "_invalid"
)

// ErrNotFound is returned by Load and Remove for ids that aren't in the spool
var ErrNotFound = errors.New("message not found in spool")

/*
Store is an on-disk spool of accepted messages. It implements eccentric.Handler.

Every message is written as one MessagePack Record named by a ULID into a
directory named after the organizational domain of its first recipient:

	<dir>/example.com/01HRB8Y5V9K3S5J3N6ZC3Q9X7M.msgp

Records are written to a temporary file first and renamed into place, so a
record that is listed is always complete.
*/
type Store struct {
	dir string
	log *zap.Logger
}

var _ eccentric.Handler = (*Store)(nil)

// New creates the spool directory if needed and returns a Store writing into it
func New(dir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrap(err, 0)
	}
	return &Store{dir: dir, log: logger}, nil
}

// Dir returns the spool root directory
func (s *Store) Dir() string {
	return s.dir
}

// Deliver writes env into the spool and returns the id of the record
func (s *Store) Deliver(ctx context.Context, env *eccentric.Envelope) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	rec := &Record{
		ID:           ulid.Make().String(),
		SessionID:    env.SessionID,
		ClientDomain: env.ClientDomain,
		Sender:       env.Sender,
		Recipients:   env.Recipients,
		ReceivedAt:   env.ReceivedAt,
		Message:      env.Message(),
	}
	if h, err := mail.ReadHeader(env.Body); err == nil {
		rec.MessageID = mail.MessageID(h)
	}

	data, err := rec.MarshalMsg(nil)
	if err != nil {
		return "", err
	}

	bucket := Bucket(env.Recipients)
	if err := s.write(bucket, rec.ID, data); err != nil {
		return "", err
	}
	s.log.Info("message spooled",
		zap.String("id", rec.ID),
		zap.String("session_id", rec.SessionID),
		zap.String("bucket", bucket),
		zap.Int("size", len(data)),
	)
	return rec.ID, nil
}

func (s *Store) write(bucket, id string, data []byte) error {
	dir := filepath.Join(s.dir, bucket)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errors.Wrap(err, 0)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-"+id+"-*")
	if err != nil {
		return errors.Wrap(err, 0)
	}
	// no-op once the rename succeeded
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, 0)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, 0)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, 0)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, id+recordExt)); err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}

// Load reads the record with the given id
func (s *Store) Load(id string) (*Record, error) {
	path, err := s.find(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	rec := &Record{}
	if _, err := rec.UnmarshalMsg(data); err != nil {
		return nil, err
	}
	return rec, nil
}

// Remove deletes the record with the given id
func (s *Store) Remove(id string) error {
	path, err := s.find(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}

// List returns ids of all spooled records, oldest first
func (s *Store) List() ([]string, error) {
	buckets, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	var ids []string
	for _, b := range buckets {
		if !b.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(s.dir, b.Name()))
		if err != nil {
			return nil, errors.Wrap(err, 0)
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, recordExt) {
				continue
			}
			ids = append(ids, strings.TrimSuffix(name, recordExt))
		}
	}
	// ULIDs sort by creation time
	sort.Strings(ids)
	return ids, nil
}

// find returns the path of the record, ids that aren't ULIDs are never found
func (s *Store) find(id string) (string, error) {
	if _, err := ulid.ParseStrict(id); err != nil {
		return "", ErrNotFound
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, "*", id+recordExt))
	if err != nil {
		return "", errors.Wrap(err, 0)
	}
	if len(matches) == 0 {
		return "", ErrNotFound
	}
	return matches[0], nil
}

// Bucket returns the spool directory name for a message with the given
// recipients: the organizational domain of the first recipient.
func Bucket(recipients []string) string {
	if len(recipients) == 0 {
		return bucketUnknown
	}
	addr, _, err := mail.ParsePath(recipients[0])
	if err != nil || addr.IsNull() {
		return bucketInvalid
	}
	host := strings.TrimSuffix(addr.Hostname(), ".")
	if host == "" || strings.HasPrefix(host, ".") || strings.ContainsAny(host, `/\`) {
		return bucketInvalid
	}
	org, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// localhost, address literals and bare public suffixes
		return host
	}
	return org
}
