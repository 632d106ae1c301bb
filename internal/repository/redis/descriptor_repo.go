package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"telecare-backend/internal/domain"
)

// DescriptorTTL bounds how long a stored session descriptor is kept. It is a
// garbage-collection bound, not a validity signal: a stale session inside the
// TTL window is only discovered when attendee creation against it fails.
const DescriptorTTL = 24 * time.Hour

// ErrDescriptorNotFound is returned when no descriptor is stored for an appointment
var ErrDescriptorNotFound = fmt.Errorf("session descriptor not found")

// DescriptorRepository stores negotiated session descriptors keyed by
// appointment, so reconnect attempts for the same appointment reuse the
// session instead of provisioning a new one.
type DescriptorRepository struct {
	client *redis.Client
}

// NewDescriptorRepository creates a new descriptor repository
func NewDescriptorRepository(client *redis.Client) *DescriptorRepository {
	return &DescriptorRepository{client: client}
}

func descriptorKey(appointmentID uuid.UUID) string {
	return fmt.Sprintf("session:appointment:%s", appointmentID)
}

// Store persists a session descriptor for the appointment
func (r *DescriptorRepository) Store(ctx context.Context, appointmentID uuid.UUID, session *domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session descriptor: %w", err)
	}

	if err := r.client.Set(ctx, descriptorKey(appointmentID), data, DescriptorTTL).Err(); err != nil {
		return fmt.Errorf("failed to store session descriptor: %w", err)
	}

	return nil
}

// Get retrieves the stored session descriptor for an appointment. Returns
// ErrDescriptorNotFound when none exists; a malformed stored value is
// reported as an error so the caller can fall back to creating a new session.
func (r *DescriptorRepository) Get(ctx context.Context, appointmentID uuid.UUID) (*domain.Session, error) {
	data, err := r.client.Get(ctx, descriptorKey(appointmentID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrDescriptorNotFound
		}
		return nil, fmt.Errorf("failed to get session descriptor: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("malformed session descriptor: %w", err)
	}

	return &session, nil
}

// Delete removes the stored descriptor, typically after the session ends
func (r *DescriptorRepository) Delete(ctx context.Context, appointmentID uuid.UUID) error {
	if err := r.client.Del(ctx, descriptorKey(appointmentID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session descriptor: %w", err)
	}
	return nil
}
