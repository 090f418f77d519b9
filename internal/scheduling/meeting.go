package scheduling

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// MeetingProvisioner creates one video room per successful booking. A
// provisioning failure aborts the booking.
type MeetingProvisioner interface {
	CreateRoom(ctx context.Context) (roomID, link string, err error)
}

type jitsiProvisioner struct {
	baseURL string
}

// NewJitsiProvisioner returns a provisioner that derives rooms under the
// given base URL, e.g. https://meet.jit.si.
func NewJitsiProvisioner(baseURL string) MeetingProvisioner {
	return &jitsiProvisioner{baseURL: baseURL}
}

func (p *jitsiProvisioner) CreateRoom(ctx context.Context) (string, string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate room id: %w", err)
	}

	roomID := fmt.Sprintf("bodywise-%d-%s", time.Now().UnixMilli(), hex.EncodeToString(buf))
	link := fmt.Sprintf("%s/%s", p.baseURL, roomID)
	return roomID, link, nil
}
