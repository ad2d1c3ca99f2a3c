package registry

import (
	"context"

	"go.uber.org/zap"
)

// ExpectedCounts is the manifest recorded on a submission before entity
// creation so the registry can track progress.
type ExpectedCounts struct {
	TotalCount           int `json:"totalCount"`
	ExpectedBiomaterials int `json:"expectedBiomaterials"`
	ExpectedProcesses    int `json:"expectedProcesses"`
	ExpectedFiles        int `json:"expectedFiles"`
	ExpectedProtocols    int `json:"expectedProtocols"`
	ExpectedProjects     int `json:"expectedProjects"`
}

// RecordExpectedCounts stores the expected-counts manifest on a submission
func (c *Client) RecordExpectedCounts(ctx context.Context, submissionURL string, counts ExpectedCounts) error {
	target, err := c.SubmissionLink(ctx, submissionURL, "submissionManifest")
	if err != nil {
		// Older registries accept the manifest directly on the envelope.
		_, patchErr := c.PatchEnvelope(ctx, submissionURL, counts)
		return patchErr
	}
	_, err = c.Put(ctx, target, counts)
	return err
}

// SubmissionError is the structured error payload recorded on an envelope
type SubmissionError struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// RecordError stores a structured error on a submission envelope. Recording
// is best-effort: failures are logged, never returned, so they cannot mask
// the original error.
func (c *Client) RecordError(ctx context.Context, submissionURL string, submissionErr SubmissionError) {
	target, err := c.SubmissionLink(ctx, submissionURL, "submissionEnvelopeErrors")
	if err != nil {
		target = joinURL(submissionURL, "submissionErrors")
	}
	if _, err := c.Post(ctx, target, submissionErr); err != nil {
		c.log.Warn("failed to record submission error",
			zap.String("submission", submissionURL),
			zap.String("title", submissionErr.Title),
			zap.Error(err))
	}
}

// TransitionState drives a submission state transition by relation name
// (e.g. submit, commitSubmit).
func (c *Client) TransitionState(ctx context.Context, submissionURL, rel string) error {
	target, err := c.SubmissionLink(ctx, submissionURL, rel)
	if err != nil {
		return err
	}
	_, err = c.Put(ctx, target, nil)
	return err
}
