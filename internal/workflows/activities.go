package workflows

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
)

const defaultRequestTimeout = 20 * time.Second

// SnapshotActivities calls the API's save endpoints.
type SnapshotActivities struct {
	APIURL string
	Client *fasthttp.Client
}

// NewSnapshotActivities creates the activities against apiURL.
func NewSnapshotActivities(apiURL string) *SnapshotActivities {
	return &SnapshotActivities{
		APIURL: apiURL,
		Client: &fasthttp.Client{
			Name:         "fieldsync-snapshotter",
			ReadTimeout:  defaultRequestTimeout,
			WriteTimeout: defaultRequestTimeout,
		},
	}
}

// TriggerSave posts to /v1/<target>/save and returns the reported outcome.
// A save already running in the API counts as done. Server errors are
// retried by Temporal; an unknown target is not.
func (a *SnapshotActivities) TriggerSave(ctx context.Context, target string) (string, error) {
	if target != TargetCache && target != TargetProjects {
		return "", temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("unknown snapshot target %q", target), "InvalidTarget", nil)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(a.APIURL + "/v1/" + target + "/save")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultRequestTimeout)
	}
	if err := a.Client.DoDeadline(req, resp, deadline); err != nil {
		return "", fmt.Errorf("post %s save: %w", target, err)
	}

	outcome := gjson.GetBytes(resp.Body(), "outcome").String()
	status := resp.StatusCode()
	activity.GetLogger(ctx).Info("save requested", "target", target, "status", status, "outcome", outcome)

	switch {
	case status == fasthttp.StatusOK, status == fasthttp.StatusConflict:
		return outcome, nil
	case status >= 500:
		return "", fmt.Errorf("%s save failed: HTTP %d (%s)", target, status, outcome)
	default:
		return "", temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("%s save rejected: HTTP %d", target, status), "Rejected", nil)
	}
}
