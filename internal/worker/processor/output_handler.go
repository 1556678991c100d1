package processor

import (
	"context"
	"os"

	"montage/internal/jobs"
	"montage/internal/pkg/errors"
	"montage/internal/ports"
	"montage/internal/worker/renderer"
)

// DownloadsPrefix is the route timeline results are served under.
const DownloadsPrefix = "/downloads/"

type OutputHandler struct {
	sp            ports.StorageProvider
	probe         renderer.Client
	publicBaseURL string
}

func NewOutputHandler(sp ports.StorageProvider, probe renderer.Client, publicBaseURL string) *OutputHandler {
	return &OutputHandler{sp: sp, probe: probe, publicBaseURL: publicBaseURL}
}

// Publish streams a flat render to object storage and returns its public
// address.
func (oh *OutputHandler) Publish(ctx context.Context, job *ParsedJob, localPath string) (*jobs.Result, error) {
	st, err := os.Stat(localPath)
	if err != nil {
		return nil, errors.Resource(err, "processor.publish", "rendered file missing")
	}
	f, err := os.Open(localPath)
	if err != nil {
		return nil, errors.Resource(err, "processor.publish", "cannot open rendered file")
	}
	defer f.Close()

	key := OutputKey(job.ProjectID, job.ID)
	out, err := oh.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   key,
		ContentType: "video/mp4",
		Reader:      f,
		Size:        st.Size(),
	})
	if err != nil {
		return nil, errors.Publish(err, "processor.publish", "upload failed").WithField("object_key", key)
	}

	url, err := oh.sp.PublicURL(ctx, out.ObjectKey)
	if err != nil {
		return nil, errors.Publish(err, "processor.publish", "cannot resolve public url").WithField("object_key", out.ObjectKey)
	}
	return &jobs.Result{URL: url, SizeBytes: out.Size}, nil
}

// Finalize leaves a timeline render on local disk and describes where it
// can be downloaded.
func (oh *OutputHandler) Finalize(ctx context.Context, job *ParsedJob, localPath string) (*jobs.Result, error) {
	meta, err := oh.probe.Probe(ctx, localPath)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeRender, "processor.finalize", "cannot probe rendered file")
	}
	download := DownloadsPrefix + job.ID
	return &jobs.Result{
		URL:             oh.publicBaseURL + download,
		DownloadPath:    download,
		DurationSeconds: meta.DurationSeconds,
		SizeBytes:       meta.SizeBytes,
	}, nil
}
