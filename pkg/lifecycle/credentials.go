package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/dbaasd/pkg/credential"
	"github.com/cuemby/dbaasd/pkg/types"
)

// ErrRotationUnsupported is returned when the instance's engine adapter
// declares no user-management capability.
var ErrRotationUnsupported = fmt.Errorf("%w: engine does not support credential rotation", ErrValidation)

const rotateCredentialsTimeout = 30 * time.Second

// RotateCredentials generates a new password for the instance's primary
// user, applies it in-engine via the adapter's user-alter command, and
// on success overwrites the row in a single update. The row is never
// touched if the in-engine command fails.
func (m *Manager) RotateCredentials(ctx context.Context, id int64) (*types.Instance, error) {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	inst, err := m.store.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst.Status != types.InstanceStatusRunning {
		return nil, fmt.Errorf("%w: instance %d is %s", ErrNotRunning, id, inst.Status)
	}

	adapter, err := m.registry.Lookup(inst.Engine)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: %w", err)
	}
	if !adapter.Supports().Users {
		return nil, ErrRotationUnsupported
	}

	newPassword, err := credential.GeneratePassword(adapter.CharsetConstraints())
	if err != nil {
		return nil, fmt.Errorf("lifecycle: generate password: %w", err)
	}

	cmd := adapter.RotateCredentialsCommand(inst, newPassword)
	if cmd.Path == "" {
		return nil, ErrRotationUnsupported
	}

	out, exitCode, err := m.runtime.Exec(ctx, inst.ContainerID, cmd, rotateCredentialsTimeout)
	if err != nil || exitCode != 0 {
		return nil, fmt.Errorf("lifecycle: rotate credentials: exit %d: %v: %s", exitCode, err, out)
	}

	inst.Password = newPassword
	if err := m.transition(ctx, inst, inst.Status); err != nil {
		return nil, fmt.Errorf("lifecycle: persist rotated credentials: %w", err)
	}
	return inst, nil
}
