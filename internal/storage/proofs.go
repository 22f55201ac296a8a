package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bountyexpo/internal/model"
	"bountyexpo/internal/schema"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const defaultUploadTTL = 15 * time.Minute

// Upload is a presigned slot a hunter PUTs a proof file to.
type Upload struct {
	ObjectName  string          `json:"objectName"`
	UploadURL   string          `json:"uploadUrl"`
	ContentType string          `json:"contentType"`
	ExpiresAt   time.Time       `json:"expiresAt"`
	Proof       model.ProofItem `json:"proof"`
}

// ProofService checks proof attachments and hands out upload slots.
type ProofService struct {
	storage  Storage
	policy   *FilePolicy
	compiler *schema.Compiler
	ttl      time.Duration
	log      *zap.Logger
}

func NewProofService(st Storage, policy *FilePolicy, compiler *schema.Compiler, log *zap.Logger) *ProofService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProofService{storage: st, policy: policy, compiler: compiler, ttl: defaultUploadTTL, log: log}
}

// CheckProof normalizes every item and validates it against the proof schema
// and the upload policy.
func (p *ProofService) CheckProof(ctx context.Context, items []model.ProofItem) ([]model.ProofItem, error) {
	out := make([]model.ProofItem, 0, len(items))
	var total int64
	for i, raw := range items {
		item := NormalizeProofItem(raw)
		if p.compiler != nil {
			if err := p.compiler.ValidateProofItem(ctx, item); err != nil {
				return nil, fmt.Errorf("proof item %d: %w", i, err)
			}
		}
		size := int64(-1)
		if item.Size != nil {
			size = *item.Size
			total += size
		}
		if err := p.policy.ValidateFile(item.Name, item.MIME, size); err != nil {
			return nil, fmt.Errorf("proof item %d: %w", i, err)
		}
		out = append(out, item)
	}
	if err := p.policy.ValidateTotal(total); err != nil {
		return nil, err
	}
	return out, nil
}

// SignUpload validates the declared file and returns a presigned upload slot
// together with the proof item to attach once the upload finishes.
func (p *ProofService) SignUpload(ctx context.Context, userID, fileName, contentType string, size int64) (*Upload, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, fmt.Errorf("file name is required")
	}
	if size < 0 {
		return nil, fmt.Errorf("file size must be non-negative")
	}
	proof := NormalizeProofItem(model.ProofItem{Name: fileName, MIME: contentType, Size: &size})
	if proof.MIME == "" {
		proof.MIME = "application/octet-stream"
	}
	if err := p.policy.ValidateFile(proof.Name, proof.MIME, size); err != nil {
		return nil, err
	}

	uploadID := ulid.Make().String()
	objectName := ObjectName(userID, uploadID, fileName)
	uploadURL, err := p.storage.PresignPut(ctx, objectName, proof.MIME, p.ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}
	readURL, err := p.storage.PresignGet(ctx, objectName, 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("failed to presign download: %w", err)
	}
	proof.ID = uploadID
	proof.URL = readURL

	p.log.Debug("Signed proof upload", zap.String("user_id", userID), zap.String("object", objectName))
	return &Upload{
		ObjectName:  objectName,
		UploadURL:   uploadURL,
		ContentType: proof.MIME,
		ExpiresAt:   time.Now().Add(p.ttl).UTC(),
		Proof:       proof,
	}, nil
}
