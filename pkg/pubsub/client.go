package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.uber.org/multierr"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/guildmarket/pkg/config"
	"github.com/angelmondragon/guildmarket/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopics          = errors.New("pubsub topic name is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client publishes outbox events to Pub/Sub. Messages carry the aggregate
// id as their ordering key, so subscribers with ordering enabled see one
// order's events in the sequence they were written.
type Client struct {
	client    *pubsub.Client
	projectID string
	topics    []string

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient connects and fails unless every configured topic exists.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	topics := topicNames(cfg)
	if len(topics) == 0 {
		return nil, errNoTopics
	}

	raw, err := pubsub.NewClient(ctx, project, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{
		client:     raw,
		projectID:  project,
		topics:     topics,
		publishers: make(map[string]*pubsub.Publisher, len(topics)),
	}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"project": project, "topics": topics}), "pubsub client initialized")
	}
	return c, nil
}

// clientOptions prefers inline JSON credentials over a credentials file;
// with neither, the library falls back to application default credentials.
func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if strings.TrimSpace(gcp.CredentialsJSON) != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

func topicNames(cfg config.PubSubConfig) []string {
	var names []string
	for _, name := range []string{cfg.OrdersTopic, cfg.ListingsTopic, cfg.SuppliersTopic} {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// resourceName expands a short topic id to projects/<p>/topics/<id>. Full
// resource names pass through; blank input or project yields "".
func resourceName(project, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/") {
		return name
	}
	project = strings.TrimSpace(project)
	if project == "" {
		return ""
	}
	return "projects/" + project + "/topics/" + name
}

// Publisher returns the cached handle for a topic, creating it with
// message ordering enabled.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := resourceName(c.projectID, name)
	if full == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	pub, ok := c.publishers[full]
	if !ok {
		pub = c.client.Publisher(full)
		pub.EnableMessageOrdering = true
		c.publishers[full] = pub
	}
	return pub
}

// Publish sends one message and waits for the server id. A failed publish
// pauses its ordering key, so the key is resumed before returning to let
// the outbox retry it.
func (c *Client) Publish(ctx context.Context, topic, key string, data []byte, attributes map[string]string) error {
	pub := c.Publisher(topic)
	if pub == nil {
		return fmt.Errorf("publisher not configured for topic %s", topic)
	}
	msg := &pubsub.Message{Data: data, Attributes: attributes, OrderingKey: key}
	if _, err := pub.Publish(ctx, msg).Get(ctx); err != nil {
		if key != "" {
			pub.ResumePublish(key)
		}
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Ping checks every configured topic and reports all missing ones at once.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	var errs error
	for _, name := range c.topics {
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: resourceName(c.projectID, name)})
		switch {
		case err == nil:
		case status.Code(err) == codes.NotFound:
			errs = multierr.Append(errs, fmt.Errorf("topic %q does not exist", name))
		default:
			errs = multierr.Append(errs, fmt.Errorf("checking topic %q: %w", name, err))
		}
	}
	return errs
}

// Close flushes publishers and releases the client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for full, pub := range c.publishers {
		pub.Stop()
		delete(c.publishers, full)
	}
	c.mu.Unlock()
	return c.client.Close()
}
