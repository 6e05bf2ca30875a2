package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"vdisphere/internal/model"
	"vdisphere/pkg/log"
	"vdisphere/pkg/proxmox"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const ProxmoxType = "proxmox"

// proxmoxConfig is the provider configuration stored in Provider.Config.
type proxmoxConfig struct {
	ApiURL       string `json:"api_url"`
	TokenID      string `json:"token_id"`
	TokenSecret  string `json:"token_secret"`
	Node         string `json:"node"`
	Storage      string `json:"storage,omitempty"`
	ResourcePool string `json:"resource_pool,omitempty"`
	FullClone    bool   `json:"full_clone,omitempty"`
}

// Operation steps serialized into the instance blob. Each step maps to one
// asynchronous PVE task.
const (
	opClone  = "clone"
	opStart  = "start"
	opStop   = "stop"
	opDelete = "delete"
)

// proxmoxState is the continuation stored in Instance.Blob between checks.
type proxmoxState struct {
	Queue []string `json:"queue,omitempty"` // steps not yet launched
	Upid  string   `json:"upid,omitempty"`  // PVE task in flight
	VmID  uint32   `json:"vmid,omitempty"`
}

type proxmoxBackend struct {
	env    *Env
	cfg    proxmoxConfig
	client *proxmox.Client
	logger *log.Logger
}

func NewProxmoxBackend(env *Env, logger *log.Logger) (Backend, error) {
	var cfg proxmoxConfig
	if err := json.Unmarshal([]byte(env.Provider.Config), &cfg); err != nil {
		return nil, fmt.Errorf("invalid proxmox provider config: %w", err)
	}
	client, err := proxmox.NewClient(cfg.ApiURL, cfg.TokenID, cfg.TokenSecret)
	if err != nil {
		return nil, err
	}
	return &proxmoxBackend{
		env:    env,
		cfg:    cfg,
		client: client,
		logger: logger,
	}, nil
}

func (b *proxmoxBackend) Type() string {
	return ProxmoxType
}

func (b *proxmoxBackend) SuggestedDelay() time.Duration {
	return 5 * time.Second
}

func (b *proxmoxBackend) DeployForUser(ctx context.Context, inst *model.Instance) (TaskState, error) {
	st := &proxmoxState{Queue: []string{opClone, opStart}}
	return b.advance(ctx, inst, st)
}

func (b *proxmoxBackend) DeployForCache(ctx context.Context, inst *model.Instance, level int8) (TaskState, error) {
	st := &proxmoxState{Queue: []string{opClone, opStart}}
	if level == model.CacheLevelL2 {
		// second level spares stay powered off
		st.Queue = []string{opClone}
	}
	return b.advance(ctx, inst, st)
}

func (b *proxmoxBackend) MoveToCache(ctx context.Context, inst *model.Instance, level int8) (TaskState, error) {
	st, err := b.load(inst)
	if err != nil {
		return TaskError, err
	}
	if st.VmID == 0 {
		return TaskError, errors.New("instance has no machine to move")
	}
	if level == model.CacheLevelL2 {
		st.Queue = []string{opStop}
	} else {
		st.Queue = []string{opStart}
	}
	return b.advance(ctx, inst, st)
}

func (b *proxmoxBackend) CheckState(ctx context.Context, inst *model.Instance) (TaskState, error) {
	st, err := b.load(inst)
	if err != nil {
		return TaskError, err
	}
	return b.advance(ctx, inst, st)
}

// Destroy tears the machine down. An in-flight task is allowed to settle
// first; whatever it was doing, the stop and delete that follow undo it.
func (b *proxmoxBackend) Destroy(ctx context.Context, inst *model.Instance) (TaskState, error) {
	st, err := b.load(inst)
	if err != nil {
		return TaskError, err
	}
	if st.VmID == 0 && st.Upid == "" {
		// nothing ever materialized
		b.save(inst, &proxmoxState{})
		return TaskFinished, nil
	}
	st.Queue = []string{opStop, opDelete}
	return b.advance(ctx, inst, st)
}

// Cancel abandons a deployment in progress. The machine is cleaned up the
// same way Destroy does it; the caller decides what the final state means.
func (b *proxmoxBackend) Cancel(ctx context.Context, inst *model.Instance) (TaskState, error) {
	return b.Destroy(ctx, inst)
}

// Reset hard-resets the guest. Fire and forget; the reset task is not
// tracked in the instance blob.
func (b *proxmoxBackend) Reset(ctx context.Context, inst *model.Instance) (TaskState, error) {
	st, err := b.load(inst)
	if err != nil {
		return TaskError, err
	}
	if st.VmID == 0 {
		return TaskFinished, nil
	}
	if _, err := b.client.ResetVM(ctx, b.cfg.Node, st.VmID); err != nil {
		return TaskError, err
	}
	return TaskFinished, nil
}

// advance drives the step queue: wait for the in-flight task, then launch
// the next step. At most one PVE task runs per instance at any time.
func (b *proxmoxBackend) advance(ctx context.Context, inst *model.Instance, st *proxmoxState) (TaskState, error) {
	if st.Upid != "" {
		task, err := b.client.GetTaskStatus(ctx, st.Upid)
		if err != nil {
			return TaskError, err
		}
		if task.IsRunning() {
			b.save(inst, st)
			return TaskRunning, nil
		}
		if !task.IsSuccessful() {
			b.save(inst, st)
			return TaskError, fmt.Errorf("proxmox task %s failed: %s", task.Type, task.ExitStatus)
		}
		st.Upid = ""
	}

	for len(st.Queue) > 0 {
		op := st.Queue[0]
		st.Queue = st.Queue[1:]

		upid, err := b.launch(ctx, inst, st, op)
		if err != nil {
			b.save(inst, st)
			return TaskError, err
		}
		if upid != "" {
			st.Upid = upid
			b.save(inst, st)
			return TaskRunning, nil
		}
		// step was a no-op, fall through to the next
	}

	b.save(inst, st)
	return TaskFinished, nil
}

// launch starts one step and returns its UPID. An empty UPID means the step
// needed no work.
func (b *proxmoxBackend) launch(ctx context.Context, inst *model.Instance, st *proxmoxState, op string) (string, error) {
	switch op {
	case opClone:
		srcID, err := b.sourceVMID()
		if err != nil {
			return "", err
		}
		newID, err := b.client.GetNextFreeVMID(ctx)
		if err != nil {
			return "", err
		}
		upid, err := b.client.CloneVM(ctx, b.cfg.Node, srcID, &proxmox.CloneVMRequest{
			NewID:   newID,
			Name:    sanitizeVMName(inst.FriendlyName),
			Full:    b.cfg.FullClone,
			Storage: b.cfg.Storage,
			Pool:    b.cfg.ResourcePool,
		})
		if err != nil {
			return "", err
		}
		st.VmID = newID
		inst.UniqueID = strconv.FormatUint(uint64(newID), 10)
		return upid, nil

	case opStart:
		status, err := b.client.GetVMStatus(ctx, b.cfg.Node, st.VmID)
		if err != nil {
			return "", err
		}
		if status.Status == "running" {
			return "", nil
		}
		return b.client.StartVM(ctx, b.cfg.Node, st.VmID)

	case opStop:
		status, err := b.client.GetVMStatus(ctx, b.cfg.Node, st.VmID)
		if err != nil {
			// a machine that is already gone needs no stop
			if st.VmID == 0 {
				return "", nil
			}
			return "", err
		}
		if status.Status == "stopped" {
			return "", nil
		}
		return b.client.StopVM(ctx, b.cfg.Node, st.VmID)

	case opDelete:
		if st.VmID == 0 {
			return "", nil
		}
		return b.client.DeleteVM(ctx, b.cfg.Node, st.VmID)

	default:
		return "", fmt.Errorf("unknown operation step: %s", op)
	}
}

// sourceVMID resolves the template to clone from: the active publication if
// one exists, the pool's base template otherwise.
func (b *proxmoxBackend) sourceVMID() (uint32, error) {
	if b.env.Publication != nil && b.env.Publication.UniqueID != "" {
		id, err := strconv.ParseUint(b.env.Publication.UniqueID, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid publication vmid %q: %w", b.env.Publication.UniqueID, err)
		}
		return uint32(id), nil
	}
	if b.env.Pool != nil && b.env.Pool.TemplateID != "" {
		id, err := strconv.ParseUint(b.env.Pool.TemplateID, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid template vmid %q: %w", b.env.Pool.TemplateID, err)
		}
		return uint32(id), nil
	}
	return 0, errors.New("no template to clone from")
}

// Publish clones the pool's base template into a fresh PVE template and
// records the new vmid on the publication. Runs synchronously: publishing is
// an administrative operation and clone tasks on stopped templates finish
// quickly.
func (b *proxmoxBackend) Publish(ctx context.Context, pub *model.Publication) error {
	if b.env.Pool == nil || b.env.Pool.TemplateID == "" {
		return errors.New("pool has no base template")
	}
	srcID, err := strconv.ParseUint(b.env.Pool.TemplateID, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid template vmid %q: %w", b.env.Pool.TemplateID, err)
	}

	newID, err := b.client.GetNextFreeVMID(ctx)
	if err != nil {
		return err
	}
	name := sanitizeVMName(fmt.Sprintf("%s-pub-%d", b.env.Pool.Name, pub.Revision))
	upid, err := b.client.CloneVM(ctx, b.cfg.Node, uint32(srcID), &proxmox.CloneVMRequest{
		NewID:   newID,
		Name:    name,
		Full:    true, // publications are always full copies
		Storage: b.cfg.Storage,
		Pool:    b.cfg.ResourcePool,
	})
	if err != nil {
		return err
	}
	if err := b.waitTask(ctx, upid); err != nil {
		return err
	}
	if err := b.client.ConvertToTemplate(ctx, b.cfg.Node, newID); err != nil {
		return err
	}
	pub.UniqueID = strconv.FormatUint(uint64(newID), 10)
	return nil
}

// DestroyPublication deletes the published template.
func (b *proxmoxBackend) DestroyPublication(ctx context.Context, pub *model.Publication) error {
	if pub.UniqueID == "" {
		return nil
	}
	vmid, err := strconv.ParseUint(pub.UniqueID, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid publication vmid %q: %w", pub.UniqueID, err)
	}
	upid, err := b.client.DeleteVM(ctx, b.cfg.Node, uint32(vmid))
	if err != nil {
		return err
	}
	return b.waitTask(ctx, upid)
}

// ConsoleDial opens a VNC websocket to the instance's machine.
func (b *proxmoxBackend) ConsoleDial(ctx context.Context, inst *model.Instance) (*websocket.Conn, error) {
	st, err := b.load(inst)
	if err != nil {
		return nil, err
	}
	if st.VmID == 0 {
		return nil, errors.New("instance has no machine")
	}
	proxy, err := b.client.QemuVNCProxy(ctx, b.cfg.Node, st.VmID, true)
	if err != nil {
		return nil, err
	}
	conn, _, err := b.client.QemuVNCWebSocket(b.cfg.Node, st.VmID, proxy)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (b *proxmoxBackend) waitTask(ctx context.Context, upid string) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		task, err := b.client.GetTaskStatus(ctx, upid)
		if err != nil {
			return err
		}
		if !task.IsRunning() {
			if !task.IsSuccessful() {
				return fmt.Errorf("proxmox task %s failed: %s", task.Type, task.ExitStatus)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *proxmoxBackend) load(inst *model.Instance) (*proxmoxState, error) {
	st := &proxmoxState{}
	if len(inst.Blob) > 0 {
		if err := json.Unmarshal(inst.Blob, st); err != nil {
			b.logger.Error("corrupt backend state blob", zap.String("uuid", inst.Uuid), zap.Error(err))
			return nil, fmt.Errorf("corrupt backend state: %w", err)
		}
	}
	if st.VmID == 0 && inst.UniqueID != "" {
		if vmid, err := strconv.ParseUint(inst.UniqueID, 10, 32); err == nil {
			st.VmID = uint32(vmid)
		}
	}
	return st, nil
}

func (b *proxmoxBackend) save(inst *model.Instance, st *proxmoxState) {
	data, err := json.Marshal(st)
	if err != nil {
		return
	}
	inst.Blob = data
}

// sanitizeVMName folds a friendly name into the DNS-like form PVE accepts.
func sanitizeVMName(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			sb.WriteRune(r)
		case r == ' ', r == '_', r == '.':
			sb.WriteRune('-')
		}
	}
	out := strings.Trim(sb.String(), "-")
	if out == "" {
		out = "vdi"
	}
	if len(out) > 63 {
		out = out[:63]
	}
	return out
}
