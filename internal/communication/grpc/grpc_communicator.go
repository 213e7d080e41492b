package grpccomm

import (
	"context"
	"encoding/json"
	"net"
	"reflect"
	"sync"

	"github.com/AnishMulay/namestore/internal/communication"
	"github.com/AnishMulay/namestore/internal/log_service"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// The messenger service is declared by hand rather than generated: the wire
// shape is the same Message/Response pair every transport carries, so a JSON
// codec and a single unary method are all that is needed.

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

type wireMessage struct {
	From    string          `json:"from"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wireResponse struct {
	Code communication.Code `json:"code"`
	Body []byte             `json:"body,omitempty"`
}

type messengerServer interface {
	Send(ctx context.Context, in *wireMessage) (*wireResponse, error)
}

// messengerService adapts inbound grpc calls onto the communicator's handler.
// A separate type keeps the service method from colliding with the
// communicator's own Send.
type messengerService struct {
	comm *GRPCCommunicator
}

func (s *messengerService) Send(ctx context.Context, in *wireMessage) (*wireResponse, error) {
	return s.comm.dispatch(in)
}

func messengerSendHandler(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	in := new(wireMessage)
	if err := dec(in); err != nil {
		return nil, err
	}
	return srv.(messengerServer).Send(ctx, in)
}

const messengerSendMethod = "/namestore.Messenger/Send"

var messengerServiceDesc = grpc.ServiceDesc{
	ServiceName: "namestore.Messenger",
	HandlerType: (*messengerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Send", Handler: messengerSendHandler},
	},
	Streams: []grpc.StreamDesc{},
}

type GRPCCommunicator struct {
	listenAddress string
	boundAddress  string
	handler       communication.MessageHandler
	grpcServer    *grpc.Server
	ls            log_service.LogService

	clientLock   sync.RWMutex
	clients      map[string]*grpc.ClientConn
	payloadTypes map[string]reflect.Type
	stopped      bool
	stopMutex    sync.Mutex
}

func NewGRPCCommunicator(addr string, ls log_service.LogService) *GRPCCommunicator {
	return &GRPCCommunicator{
		listenAddress: addr,
		ls:            ls,
		clients:       make(map[string]*grpc.ClientConn),
		payloadTypes:  communication.DefaultPayloadTypes(),
	}
}

// RegisterPayloadType adds or overrides the payload struct decoded for a
// message type.
func (c *GRPCCommunicator) RegisterPayloadType(msgType string, payloadType reflect.Type) {
	c.payloadTypes[msgType] = payloadType
}

func (c *GRPCCommunicator) Address() string {
	if c.boundAddress != "" {
		return c.boundAddress
	}
	return c.listenAddress
}

func (c *GRPCCommunicator) Start(handler communication.MessageHandler) error {
	c.ls.Info(log_service.LogEvent{
		Message:  "Starting GRPC communicator",
		Metadata: map[string]any{"address": c.listenAddress},
	})

	c.handler = handler
	c.grpcServer = grpc.NewServer(grpc.ForceServerCodec(jsonCodec{}))
	c.grpcServer.RegisterService(&messengerServiceDesc, &messengerService{comm: c})

	lis, err := net.Listen("tcp", c.listenAddress)
	if err != nil {
		c.ls.Error(log_service.LogEvent{
			Message:  "Failed to listen on address",
			Metadata: map[string]any{"address": c.listenAddress, "error": err.Error()},
		})
		return communication.ErrGRPCListenFailed
	}
	c.boundAddress = lis.Addr().String()

	go func() {
		if err := c.grpcServer.Serve(lis); err != nil {
			c.ls.Error(log_service.LogEvent{
				Message:  "GRPC server error",
				Metadata: map[string]any{"address": c.boundAddress, "error": err.Error()},
			})
		}
	}()

	c.ls.Info(log_service.LogEvent{
		Message:  "GRPC communicator started successfully",
		Metadata: map[string]any{"address": c.boundAddress},
	})

	return nil
}

func (c *GRPCCommunicator) Stop() error {
	c.stopMutex.Lock()
	defer c.stopMutex.Unlock()

	if c.stopped {
		return nil
	}

	c.ls.Info(log_service.LogEvent{
		Message:  "Stopping GRPC communicator",
		Metadata: map[string]any{"address": c.Address()},
	})

	if c.grpcServer != nil {
		c.grpcServer.GracefulStop()
	}

	c.clientLock.Lock()
	for _, conn := range c.clients {
		conn.Close()
	}
	c.clients = make(map[string]*grpc.ClientConn)
	c.clientLock.Unlock()

	c.stopped = true
	return nil
}

// dispatch decodes one inbound request and runs it through the handler.
func (c *GRPCCommunicator) dispatch(in *wireMessage) (*wireResponse, error) {
	if c.handler == nil {
		return nil, communication.ErrHandlerNotSet
	}

	msg := communication.Message{
		From: in.From,
		Type: in.Type,
	}

	if payloadType, ok := c.payloadTypes[in.Type]; ok && len(in.Payload) > 0 {
		payloadValue := reflect.New(payloadType)
		if err := json.Unmarshal(in.Payload, payloadValue.Interface()); err != nil {
			c.ls.Error(log_service.LogEvent{
				Message:  "Failed to unmarshal payload into struct",
				Metadata: map[string]any{"type": in.Type, "error": err.Error()},
			})
			return &wireResponse{
				Code: communication.CodeBadRequest,
				Body: []byte(communication.ErrPayloadUnmarshalFailed.Error()),
			}, nil
		}
		msg.Payload = payloadValue.Elem().Interface()
	}

	resp, err := c.handler(msg)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, communication.ErrMessageHandlerFailed
	}

	return &wireResponse{Code: resp.Code, Body: resp.Body}, nil
}

func (c *GRPCCommunicator) conn(to string) (*grpc.ClientConn, error) {
	c.clientLock.RLock()
	conn, ok := c.clients[to]
	c.clientLock.RUnlock()
	if ok {
		return conn, nil
	}

	conn, err := grpc.NewClient(to,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	)
	if err != nil {
		return nil, communication.ErrGRPCDialFailed
	}

	c.clientLock.Lock()
	c.clients[to] = conn
	c.clientLock.Unlock()

	return conn, nil
}

// Send issues a request to another node over grpc.
func (c *GRPCCommunicator) Send(ctx context.Context, to string, msg communication.Message) (*communication.Response, error) {
	c.ls.Debug(log_service.LogEvent{
		Message:  "Sending GRPC message",
		Metadata: map[string]any{"to": to, "type": msg.Type},
	})

	conn, err := c.conn(to)
	if err != nil {
		return nil, err
	}

	in := &wireMessage{
		From: c.Address(),
		Type: msg.Type,
	}
	if msg.Payload != nil {
		raw, err := json.Marshal(msg.Payload)
		if err != nil {
			return nil, communication.ErrPayloadMarshalFailed
		}
		in.Payload = raw
	}

	out := new(wireResponse)
	if err := conn.Invoke(ctx, messengerSendMethod, in, out); err != nil {
		c.ls.Error(log_service.LogEvent{
			Message:  "Failed to send GRPC request",
			Metadata: map[string]any{"to": to, "type": msg.Type, "error": err.Error()},
		})
		return nil, err
	}

	return &communication.Response{Code: out.Code, Body: out.Body}, nil
}
