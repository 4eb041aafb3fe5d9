package monitor

import (
	"strings"

	"github.com/golang/protobuf/proto"
)

// TransferEvent is published for every completed transfer.
type TransferEvent struct {
	Device      string `protobuf:"bytes,1,opt,name=device,proto3" json:"device,omitempty"`
	Role        string `protobuf:"bytes,2,opt,name=role,proto3" json:"role,omitempty"`
	Count       uint64 `protobuf:"varint,3,opt,name=count,proto3" json:"count,omitempty"`
	Length      uint32 `protobuf:"varint,4,opt,name=length,proto3" json:"length,omitempty"`
	BufferIndex uint32 `protobuf:"varint,5,opt,name=buffer_index,proto3" json:"buffer_index,omitempty"`
	Overflow    bool   `protobuf:"varint,6,opt,name=overflow,proto3" json:"overflow,omitempty"`
	Timestamp   int64  `protobuf:"varint,7,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *TransferEvent) ProtoMessage() {}

// Reset implements proto.Message.
func (m *TransferEvent) Reset() { *m = TransferEvent{} }

// String implements proto.Message.
func (m *TransferEvent) String() string { return proto.CompactTextString(m) }

// StatusEvent is published when a controller changes its lifecycle state.
type StatusEvent struct {
	Device    string `protobuf:"bytes,1,opt,name=device,proto3" json:"device,omitempty"`
	Role      string `protobuf:"bytes,2,opt,name=role,proto3" json:"role,omitempty"`
	State     string `protobuf:"bytes,3,opt,name=state,proto3" json:"state,omitempty"`
	Transfers uint64 `protobuf:"varint,4,opt,name=transfers,proto3" json:"transfers,omitempty"`
	Error     string `protobuf:"bytes,5,opt,name=error,proto3" json:"error,omitempty"`
	Timestamp int64  `protobuf:"varint,6,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *StatusEvent) ProtoMessage() {}

// Reset implements proto.Message.
func (m *StatusEvent) Reset() { *m = StatusEvent{} }

// String implements proto.Message.
func (m *StatusEvent) String() string { return proto.CompactTextString(m) }

// Meta is the retained description of a monitored device, encoded as JSON.
type Meta struct {
	Device      string   `json:"device"`
	Description string   `json:"description,omitempty"`
	Roles       []string `json:"roles"`
	Interval    string   `json:"interval,omitempty"`
}

// Topics relative to the queue prefix.
func transferTopic(device, role string) string { return device + "/" + role + "/transfer" }
func statusTopic(device, role string) string   { return device + "/" + role + "/status" }
func metaTopic(device string) string           { return device + "/meta" }

// Topic patterns matching all devices.
const (
	TransferTopicPattern = "+/+/transfer"
	StatusTopicPattern   = "+/+/status"
	MetaTopicPattern     = "+/meta"
)

// ParseTopic splits a topic into device, role and kind. role is empty
// for meta topics.
func ParseTopic(topic string) (device, role, kind string, ok bool) {
	parts := strings.Split(topic, "/")
	switch len(parts) {
	case 2:
		return parts[0], "", parts[1], parts[1] == "meta"
	case 3:
		return parts[0], parts[1], parts[2], true
	}
	return "", "", "", false
}
