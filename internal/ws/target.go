package ws

import "fmt"

type TargetKind int

const (
	TargetUser TargetKind = iota + 1
	TargetGroup
)

// Target selects who receives a delivery: every connection of one user, or
// every connection that joined a conversation group.
type Target struct {
	Kind   TargetKind
	UserID int
	Group  string
}

func ToUser(userID int) Target {
	return Target{Kind: TargetUser, UserID: userID}
}

func ToGroup(key string) Target {
	return Target{Kind: TargetGroup, Group: key}
}

func (t Target) String() string {
	switch t.Kind {
	case TargetUser:
		return fmt.Sprintf("user:%d", t.UserID)
	case TargetGroup:
		return "group:" + t.Group
	default:
		return "invalid"
	}
}

// DeliveryMode picks the target SendMessage pushes to.
type DeliveryMode int

const (
	// DeliverToUser pushes to all of the recipient's connections.
	DeliverToUser DeliveryMode = iota
	// DeliverToConversation pushes to the connections that joined the
	// sender/recipient conversation group.
	DeliverToConversation
)
