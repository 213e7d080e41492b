package httpcomm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/AnishMulay/namestore/internal/communication"
	"github.com/AnishMulay/namestore/internal/log_service"
)

// HTTPCommunicator carries Messages as JSON over a single POST endpoint.
type HTTPCommunicator struct {
	listenAddress string
	boundAddress  string
	httpServer    *http.Server
	handler       communication.MessageHandler
	ls            log_service.LogService
	clientLock    sync.RWMutex
	clients       map[string]*http.Client
	payloadTypes  map[string]reflect.Type
}

func NewHTTPCommunicator(listenAddress string, ls log_service.LogService) *HTTPCommunicator {
	return &HTTPCommunicator{
		listenAddress: listenAddress,
		ls:            ls,
		clients:       make(map[string]*http.Client),
		payloadTypes:  communication.DefaultPayloadTypes(),
	}
}

// RegisterPayloadType adds or overrides the payload struct decoded for a
// message type.
func (c *HTTPCommunicator) RegisterPayloadType(msgType string, payloadType reflect.Type) {
	c.payloadTypes[msgType] = payloadType
}

// Address returns the bound listen address once Start has succeeded, and the
// configured address before that.
func (c *HTTPCommunicator) Address() string {
	if c.boundAddress != "" {
		return c.boundAddress
	}
	return c.listenAddress
}

func (c *HTTPCommunicator) Start(handler communication.MessageHandler) error {
	c.ls.Info(log_service.LogEvent{
		Message:  "Starting HTTP communicator",
		Metadata: map[string]any{"address": c.listenAddress},
	})

	c.handler = handler

	mux := http.NewServeMux()
	mux.HandleFunc("/message", c.handleHTTPMessage)

	lis, err := net.Listen("tcp", c.listenAddress)
	if err != nil {
		c.ls.Error(log_service.LogEvent{
			Message:  "Failed to listen on address",
			Metadata: map[string]any{"address": c.listenAddress, "error": err.Error()},
		})
		return communication.ErrServerStartFailed
	}
	c.boundAddress = lis.Addr().String()

	c.httpServer = &http.Server{
		Addr:    c.listenAddress,
		Handler: mux,
	}

	go func() {
		if err := c.httpServer.Serve(lis); err != nil && err != http.ErrServerClosed {
			c.ls.Error(log_service.LogEvent{
				Message:  "HTTP server error",
				Metadata: map[string]any{"address": c.boundAddress, "error": err.Error()},
			})
		}
	}()

	c.ls.Info(log_service.LogEvent{
		Message:  "HTTP communicator started successfully",
		Metadata: map[string]any{"address": c.boundAddress},
	})

	return nil
}

func (c *HTTPCommunicator) Stop() error {
	if c.httpServer == nil {
		return nil
	}

	c.ls.Info(log_service.LogEvent{
		Message:  "Stopping HTTP communicator",
		Metadata: map[string]any{"address": c.Address()},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.httpServer.Shutdown(ctx); err != nil {
		c.ls.Error(log_service.LogEvent{
			Message:  "Failed to stop HTTP server",
			Metadata: map[string]any{"address": c.Address(), "error": err.Error()},
		})
		return communication.ErrServerStopFailed
	}

	return nil
}

func statusFromCode(code communication.Code) int {
	switch code {
	case communication.CodeOK:
		return http.StatusOK
	case communication.CodeBadRequest:
		return http.StatusBadRequest
	case communication.CodeNotFound:
		return http.StatusNotFound
	case communication.CodeConflict:
		return http.StatusConflict
	case communication.CodeOutOfRange:
		return http.StatusRequestedRangeNotSatisfiable
	case communication.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func codeFromStatus(status int) communication.Code {
	switch status {
	case http.StatusOK:
		return communication.CodeOK
	case http.StatusBadRequest:
		return communication.CodeBadRequest
	case http.StatusNotFound:
		return communication.CodeNotFound
	case http.StatusConflict:
		return communication.CodeConflict
	case http.StatusRequestedRangeNotSatisfiable:
		return communication.CodeOutOfRange
	case http.StatusServiceUnavailable:
		return communication.CodeUnavailable
	default:
		return communication.CodeInternal
	}
}

func (c *HTTPCommunicator) Send(ctx context.Context, to string, msg communication.Message) (*communication.Response, error) {
	c.ls.Debug(log_service.LogEvent{
		Message:  "Sending HTTP message",
		Metadata: map[string]any{"to": to, "type": msg.Type},
	})

	c.clientLock.RLock()
	client, ok := c.clients[to]
	c.clientLock.RUnlock()

	if !ok {
		// No client-side timeout: a lock request legitimately blocks until
		// the lock is granted. Callers bound waits through ctx.
		client = &http.Client{}
		c.clientLock.Lock()
		c.clients[to] = client
		c.clientLock.Unlock()
	}

	msg.From = c.Address()
	jsonData, err := json.Marshal(msg)
	if err != nil {
		c.ls.Error(log_service.LogEvent{
			Message:  "Failed to marshal message",
			Metadata: map[string]any{"to": to, "type": msg.Type, "error": err.Error()},
		})
		return nil, communication.ErrMessageMarshalFailed
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("http://%s/message", to), bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, communication.ErrHTTPRequestCreateFailed
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		c.ls.Error(log_service.LogEvent{
			Message:  "Failed to send HTTP request",
			Metadata: map[string]any{"to": to, "type": msg.Type, "error": err.Error()},
		})
		return nil, communication.ErrHTTPRequestSendFailed
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, communication.ErrHTTPResponseReadFailed
	}

	return &communication.Response{
		Code: codeFromStatus(resp.StatusCode),
		Body: body,
	}, nil
}

func (c *HTTPCommunicator) handleHTTPMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, communication.ErrHTTPBodyReadFailed.Error(), http.StatusBadRequest)
		return
	}

	var msg communication.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		c.ls.Error(log_service.LogEvent{
			Message:  "Invalid JSON in request",
			Metadata: map[string]any{"error": err.Error()},
		})
		http.Error(w, communication.ErrInvalidJSON.Error(), http.StatusBadRequest)
		return
	}

	if msg.Type == "" {
		http.Error(w, communication.ErrMissingRequiredFields.Error(), http.StatusBadRequest)
		return
	}

	if c.handler == nil {
		http.Error(w, communication.ErrHandlerNotSet.Error(), http.StatusServiceUnavailable)
		return
	}

	if payloadType, ok := c.payloadTypes[msg.Type]; ok && msg.Payload != nil {
		raw, err := json.Marshal(msg.Payload)
		if err != nil {
			http.Error(w, communication.ErrPayloadMarshalFailed.Error(), http.StatusBadRequest)
			return
		}

		payloadValue := reflect.New(payloadType)
		if err := json.Unmarshal(raw, payloadValue.Interface()); err != nil {
			c.ls.Error(log_service.LogEvent{
				Message:  "Failed to unmarshal payload into struct",
				Metadata: map[string]any{"type": msg.Type, "error": err.Error()},
			})
			http.Error(w, communication.ErrPayloadUnmarshalFailed.Error(), http.StatusBadRequest)
			return
		}

		msg.Payload = payloadValue.Elem().Interface()
	}

	resp, err := c.handler(msg)
	if err != nil {
		c.ls.Error(log_service.LogEvent{
			Message:  "Message handler failed",
			Metadata: map[string]any{"type": msg.Type, "error": err.Error()},
		})
		http.Error(w, communication.ErrMessageHandlerFailed.Error(), http.StatusInternalServerError)
		return
	}

	if resp == nil {
		http.Error(w, communication.ErrMessageHandlerFailed.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(statusFromCode(resp.Code))
	if resp.Body != nil {
		if _, err := w.Write(resp.Body); err != nil {
			c.ls.Error(log_service.LogEvent{
				Message:  "Failed to write HTTP response body",
				Metadata: map[string]any{"error": err.Error()},
			})
		}
	}
}
