package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	ErrBadSignature = errors.New("invalid or expired signature")
	ErrBadObject    = errors.New("invalid object name")
)

// Storage defines the interface for proof attachment backends
type Storage interface {
	PresignPut(ctx context.Context, objectName, contentType string, expiresIn time.Duration) (string, error)
	PresignGet(ctx context.Context, objectName string, expiresIn time.Duration) (string, error)
	Put(ctx context.Context, objectName string, reader io.Reader) error
	Get(ctx context.Context, objectName string) (io.ReadCloser, error)
	Delete(ctx context.Context, objectName string) error
}

// LocalStorage implements Storage on the local filesystem. Presigned URLs
// point back at this service's /files route and carry an HMAC signature.
type LocalStorage struct {
	baseDir string
	baseURL string
	secret  []byte
	now     func() time.Time
}

// NewLocalStorage creates a new local filesystem storage backend
func NewLocalStorage(baseDir, baseURL string, secret []byte) (*LocalStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &LocalStorage{
		baseDir: baseDir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		secret:  secret,
		now:     time.Now,
	}, nil
}

func (s *LocalStorage) PresignPut(ctx context.Context, objectName, contentType string, expiresIn time.Duration) (string, error) {
	return s.presign("PUT", objectName, contentType, expiresIn)
}

func (s *LocalStorage) PresignGet(ctx context.Context, objectName string, expiresIn time.Duration) (string, error) {
	return s.presign("GET", objectName, "", expiresIn)
}

func (s *LocalStorage) presign(method, objectName, contentType string, expiresIn time.Duration) (string, error) {
	if err := checkObjectName(objectName); err != nil {
		return "", err
	}
	exp := s.now().Add(expiresIn).Unix()
	q := url.Values{}
	q.Set("exp", strconv.FormatInt(exp, 10))
	q.Set("sig", s.sign(method, objectName, contentType, exp))
	if contentType != "" {
		q.Set("ct", contentType)
	}
	return fmt.Sprintf("%s/files/%s?%s", s.baseURL, objectName, q.Encode()), nil
}

// Verify checks a signature produced by PresignPut or PresignGet.
func (s *LocalStorage) Verify(method, objectName, contentType, exp, sig string) error {
	expUnix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil || s.now().Unix() > expUnix {
		return ErrBadSignature
	}
	want := s.sign(method, objectName, contentType, expUnix)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return ErrBadSignature
	}
	return nil
}

func (s *LocalStorage) sign(method, objectName, contentType string, exp int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s\n%s\n%s\n%d", method, objectName, contentType, exp)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *LocalStorage) path(objectName string) (string, error) {
	if err := checkObjectName(objectName); err != nil {
		return "", err
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(objectName)), nil
}

func (s *LocalStorage) Put(ctx context.Context, objectName string, reader io.Reader) error {
	fullPath, err := s.path(objectName)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func (s *LocalStorage) Get(ctx context.Context, objectName string) (io.ReadCloser, error) {
	fullPath, err := s.path(objectName)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

func (s *LocalStorage) Delete(ctx context.Context, objectName string) error {
	fullPath, err := s.path(objectName)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func checkObjectName(name string) error {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return ErrBadObject
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return ErrBadObject
		}
	}
	return nil
}

// CalculateSHA256 calculates SHA256 hash of file content
func CalculateSHA256(reader io.Reader) (string, error) {
	hash := sha256.New()
	if _, err := io.Copy(hash, reader); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
