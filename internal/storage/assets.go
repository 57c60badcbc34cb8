package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"frameart/internal/domain"
	"frameart/internal/infra"
)

const (
	ImagesDir = "images"
	VideosDir = "videos"
)

// AssetStore is the output sink for compliant stills and derived media. Stills
// take the next sequence number in images/; a derived video reuses the number
// of the still it was rendered from.
type AssetStore struct {
	files  *FileStore
	mirror *Mirror
	logger *infra.Logger
}

type AssetStoreOptions struct {
	Files  *FileStore
	Mirror *Mirror
	Logger *infra.Logger
}

func NewAssetStore(opts AssetStoreOptions) (*AssetStore, error) {
	if opts.Files == nil {
		return nil, errors.New("storage: file store is required")
	}
	logger := opts.Logger
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &AssetStore{files: opts.Files, mirror: opts.Mirror, logger: logger}, nil
}

// Files exposes the underlying file store.
func (s *AssetStore) Files() *FileStore {
	return s.files
}

// SaveStill publishes asset as images/NNN.jpg and returns it with Seq and
// StorageKey filled in.
func (s *AssetStore) SaveStill(ctx context.Context, asset domain.CompliantAsset) (domain.CompliantAsset, error) {
	if len(asset.Data) == 0 {
		return domain.CompliantAsset{}, errors.New("storage: still has no data")
	}
	seq, key, err := s.files.WriteNext(ctx, ImagesDir, "jpg", asset.Data)
	if err != nil {
		return domain.CompliantAsset{}, err
	}
	asset.Seq = seq
	asset.StorageKey = key
	s.mirrorPut(ctx, key, asset.Data, domain.FormatJPEG)
	return asset, nil
}

// SaveArtifact writes art as videos/NNN.mp4 for the still it was built from.
// The payload is dropped from the returned value once it is on disk.
func (s *AssetStore) SaveArtifact(ctx context.Context, art domain.DerivedArtifact) (domain.DerivedArtifact, error) {
	if len(art.Data) == 0 {
		return domain.DerivedArtifact{}, errors.New("storage: artifact has no data")
	}
	if art.Source.Seq <= 0 {
		return domain.DerivedArtifact{}, fmt.Errorf("storage: artifact source %s has no sequence number", art.Source)
	}
	key, err := s.files.Write(ctx, VideosDir+"/"+SequenceName(art.Source.Seq, "mp4"), art.Data)
	if err != nil {
		return domain.DerivedArtifact{}, err
	}
	s.mirrorPut(ctx, key, art.Data, art.Format)
	art.StorageKey = key
	art.Data = nil
	return art, nil
}

// RemoveArtifact deletes the stored payload of a stale artifact.
func (s *AssetStore) RemoveArtifact(ctx context.Context, art domain.DerivedArtifact) error {
	if art.StorageKey == "" {
		return nil
	}
	if err := s.files.Remove(art.StorageKey); err != nil {
		return err
	}
	if s.mirror != nil {
		if err := s.mirror.Delete(ctx, art.StorageKey); err != nil {
			s.logger.Warn().Err(err).Str("key", art.StorageKey).Msg("mirror delete failed")
		}
	}
	return nil
}

// Mirror failures are logged; the local copy is authoritative.
func (s *AssetStore) mirrorPut(ctx context.Context, key string, data []byte, contentType string) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Put(ctx, key, data, contentType); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("mirror upload failed")
	}
}
