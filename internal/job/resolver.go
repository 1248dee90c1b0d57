package job

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/tyvekbio/cellseek/internal/store"
	"github.com/tyvekbio/cellseek/pkg/models"
)

// resolveDatasetPath maps a submission's file_info to the dataset file on
// disk. Upload jobs carry the file record's id; sample jobs carry the
// sample_id of a built-in reference dataset, stored by convention at
// {built_in_dir}/{sample_id}.h5ad.
func (s *Service) resolveDatasetPath(ctx context.Context, job *models.Job) (string, error) {
	switch job.JobType {
	case models.JobTypeUpload:
		fileID, err := strconv.ParseInt(job.FileInfo, 10, 64)
		if err != nil {
			return "", fmt.Errorf("file_info %q is not a file id: %w", job.FileInfo, err)
		}
		file, err := s.store.GetFile(ctx, fileID)
		if err != nil {
			return "", fmt.Errorf("looking up uploaded file %d: %w", fileID, err)
		}
		return filepath.Join(s.cfg.Storage.UploadDir, file.Path), nil

	case models.JobTypeSample:
		samples, _, err := s.store.ListSamples(ctx, store.SampleFilter{SampleID: job.FileInfo, Limit: 1})
		if err != nil {
			return "", fmt.Errorf("looking up sample %q: %w", job.FileInfo, err)
		}
		if len(samples) == 0 {
			return "", fmt.Errorf("sample %q: %w", job.FileInfo, store.ErrNotFound)
		}
		return filepath.Join(s.cfg.Storage.BuiltInDir, samples[0].SampleID+".h5ad"), nil

	default:
		return "", fmt.Errorf("unknown job type %d", job.JobType)
	}
}
