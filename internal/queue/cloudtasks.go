package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	cloudtasks "google.golang.org/api/cloudtasks/v2"
	"google.golang.org/api/option"
)

// CloudTasksQueue implements TaskQueue on Google Cloud Tasks. Each task
// POSTs the JSON payload back to the service's callback endpoint.
type CloudTasksQueue struct {
	service   *cloudtasks.Service
	queuePath string
	targetURL string
}

// CloudTasksConfig holds Cloud Tasks configuration.
type CloudTasksConfig struct {
	// ProjectID is the GCP project ID.
	ProjectID string
	// Location is the queue location (e.g. "asia-northeast3").
	Location string
	// QueueName is the Cloud Tasks queue name.
	QueueName string
	// ServiceURL is the public base URL of this service; the callback
	// path is appended to it.
	ServiceURL string
	// CredentialsFile is a service account key path. Empty means
	// Application Default Credentials.
	CredentialsFile string
}

// CallbackPath is where analysis tasks are delivered.
const CallbackPath = "/process-analysis-callback"

// NewCloudTasksQueue creates a Cloud Tasks backed queue.
func NewCloudTasksQueue(ctx context.Context, cfg CloudTasksConfig) (*CloudTasksQueue, error) {
	if cfg.ProjectID == "" || cfg.Location == "" || cfg.QueueName == "" {
		return nil, errors.New("project ID, location, and queue name are required")
	}
	if cfg.ServiceURL == "" {
		return nil, errors.New("service URL is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	service, err := cloudtasks.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create cloud tasks service: %w", err)
	}

	return &CloudTasksQueue{
		service: service,
		queuePath: fmt.Sprintf("projects/%s/locations/%s/queues/%s",
			cfg.ProjectID, cfg.Location, cfg.QueueName),
		targetURL: cfg.ServiceURL + CallbackPath,
	}, nil
}

// Enqueue creates one HTTP task carrying the base64-encoded payload.
func (q *CloudTasksQueue) Enqueue(ctx context.Context, task *AnalysisTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal analysis task: %w", err)
	}

	req := &cloudtasks.CreateTaskRequest{
		Task: &cloudtasks.Task{
			Name: fmt.Sprintf("%s/tasks/analysis-%s", q.queuePath, uuid.NewString()),
			HttpRequest: &cloudtasks.HttpRequest{
				HttpMethod: "POST",
				Url:        q.targetURL,
				Headers:    map[string]string{"Content-Type": "application/json"},
				Body:       base64.StdEncoding.EncodeToString(payload),
			},
		},
	}

	if _, err := q.service.Projects.Locations.Queues.Tasks.Create(q.queuePath, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("create analysis task: %w", err)
	}

	log.Printf("[Task Created] for user: %s", task.UserKey)
	return nil
}

// Close implements TaskQueue.
func (q *CloudTasksQueue) Close() error {
	return nil
}
