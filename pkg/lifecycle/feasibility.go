package lifecycle

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/cuemby/dbaasd/pkg/storage"
	"github.com/cuemby/dbaasd/pkg/types"
)

// checkFeasibility rejects a request whose resolved SKU cannot
// possibly be satisfied by the host: more memory or storage than is
// currently free, or more vCPU than the host has cores once every
// other non-destroyed instance's reservation is accounted for. A pass
// here is not a reservation — it only catches requests that are
// hopeless on the host as it stands right now.
func (m *Manager) checkFeasibility(ctx context.Context, resolvedSku types.Sku) error {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return fmt.Errorf("lifecycle: read host memory: %w", err)
	}
	if int64(resolvedSku.MemoryMB) > int64(vm.Available/(1024*1024)) {
		return fmt.Errorf("%w: sku requires %d MB memory, host has %d MB available",
			ErrValidation, resolvedSku.MemoryMB, vm.Available/(1024*1024))
	}

	du, err := disk.UsageWithContext(ctx, m.cfg.DataRoot)
	if err != nil {
		return fmt.Errorf("lifecycle: read host disk usage: %w", err)
	}
	if int64(resolvedSku.StorageGB) > int64(du.Free/(1024*1024*1024)) {
		return fmt.Errorf("%w: sku requires %d GB storage, host has %d GB free",
			ErrValidation, resolvedSku.StorageGB, du.Free/(1024*1024*1024))
	}

	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return fmt.Errorf("lifecycle: read host cpu count: %w", err)
	}
	instances, err := m.store.ListInstances(ctx, storage.InstanceFilter{})
	if err != nil {
		return fmt.Errorf("lifecycle: list instances: %w", err)
	}
	committed := resolvedSku.VCPU
	for _, inst := range instances {
		if inst.Status == types.InstanceStatusDestroyed || inst.Status == types.InstanceStatusFailed {
			continue
		}
		committed += inst.CPULimit
	}
	if committed > float64(cores) {
		return fmt.Errorf("%w: sku requires %.1f vCPU, host has %d cores and %.1f already committed",
			ErrValidation, resolvedSku.VCPU, cores, committed-resolvedSku.VCPU)
	}

	return nil
}

// validateTLSMaterial rejects a TLS-enabled request whose cert/key
// cannot be parsed as a matching PEM key pair, before anything is
// written to the instance's volume.
func validateTLSMaterial(spec *types.CreateSpec) error {
	if !spec.TLSEnabled {
		return nil
	}
	if len(spec.TLSCert) == 0 || len(spec.TLSKey) == 0 {
		return fmt.Errorf("%w: tls_enabled requires tls_cert and tls_key", ErrValidation)
	}
	if _, err := tls.X509KeyPair(spec.TLSCert, spec.TLSKey); err != nil {
		return fmt.Errorf("%w: tls cert/key do not form a valid pair: %v", ErrValidation, err)
	}
	return nil
}
