// Package k8s implements leader election on the Kubernetes
// coordination/v1 Lease API.
package k8s

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	coordinationv1 "k8s.io/api/coordination/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/xraph/steward/cluster"
)

// Compile-time check that Elector implements cluster.Elector.
var _ cluster.Elector = (*Elector)(nil)

const defaultLeaseName = "steward-leader"

// Option configures an Elector.
type Option func(*Elector)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Elector) { e.logger = l }
}

// WithLeaseName sets the Lease object name used for leader election.
// Default: "steward-leader".
func WithLeaseName(name string) Option {
	return func(e *Elector) { e.leaseName = name }
}

// Elector implements leadership on a coordination/v1 Lease object.
// Holder identity and expiry live in the Lease spec; expiry is judged
// client-side from RenewTime + LeaseDurationSeconds.
type Elector struct {
	client    kubernetes.Interface
	namespace string
	leaseName string
	logger    *slog.Logger
}

// New creates a Lease-backed elector. The clientset and namespace are
// required.
func New(client kubernetes.Interface, namespace string, opts ...Option) *Elector {
	e := &Elector{
		client:    client,
		namespace: namespace,
		leaseName: defaultLeaseName,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Acquire attempts to take leadership for the given identity.
func (e *Elector) Acquire(ctx context.Context, identity string, ttl time.Duration) (bool, error) {
	now := metav1.NewMicroTime(time.Now().UTC())
	ttlSec := int32(ttl.Seconds())

	lease, err := e.client.CoordinationV1().Leases(e.namespace).Get(ctx, e.leaseName, metav1.GetOptions{})
	if errors.IsNotFound(err) {
		// No lease exists, create one with us as holder.
		newLease := &coordinationv1.Lease{
			ObjectMeta: metav1.ObjectMeta{
				Name:      e.leaseName,
				Namespace: e.namespace,
			},
			Spec: coordinationv1.LeaseSpec{
				HolderIdentity:       &identity,
				LeaseDurationSeconds: &ttlSec,
				AcquireTime:          &now,
				RenewTime:            &now,
			},
		}
		_, createErr := e.client.CoordinationV1().Leases(e.namespace).Create(ctx, newLease, metav1.CreateOptions{})
		if createErr != nil {
			if errors.IsAlreadyExists(createErr) {
				return false, nil // race: someone else created it first
			}
			return false, fmt.Errorf("k8s: create lease: %w", createErr)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("k8s: get lease: %w", err)
	}

	if e.isHeldByOther(lease, identity) {
		return false, nil
	}

	// Acquire or re-acquire.
	lease.Spec.HolderIdentity = &identity
	lease.Spec.LeaseDurationSeconds = &ttlSec
	lease.Spec.AcquireTime = &now
	lease.Spec.RenewTime = &now

	_, err = e.client.CoordinationV1().Leases(e.namespace).Update(ctx, lease, metav1.UpdateOptions{})
	if err != nil {
		return false, fmt.Errorf("k8s: update lease (acquire): %w", err)
	}
	return true, nil
}

// Renew extends the hold by updating the Lease. It returns false when
// identity is not the current holder.
func (e *Elector) Renew(ctx context.Context, identity string, ttl time.Duration) (bool, error) {
	now := metav1.NewMicroTime(time.Now().UTC())
	ttlSec := int32(ttl.Seconds())

	lease, err := e.client.CoordinationV1().Leases(e.namespace).Get(ctx, e.leaseName, metav1.GetOptions{})
	if err != nil {
		if errors.IsNotFound(err) {
			return false, nil // no lease exists
		}
		return false, fmt.Errorf("k8s: renew get lease: %w", err)
	}

	if lease.Spec.HolderIdentity == nil || *lease.Spec.HolderIdentity != identity {
		return false, nil
	}

	lease.Spec.LeaseDurationSeconds = &ttlSec
	lease.Spec.RenewTime = &now

	_, err = e.client.CoordinationV1().Leases(e.namespace).Update(ctx, lease, metav1.UpdateOptions{})
	if err != nil {
		return false, fmt.Errorf("k8s: renew update lease: %w", err)
	}
	return true, nil
}

// Leader returns the identity on the Lease, or empty when there is no
// unexpired holder.
func (e *Elector) Leader(ctx context.Context) (string, error) {
	lease, err := e.client.CoordinationV1().Leases(e.namespace).Get(ctx, e.leaseName, metav1.GetOptions{})
	if err != nil {
		if errors.IsNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("k8s: get leader lease: %w", err)
	}

	if lease.Spec.HolderIdentity == nil || *lease.Spec.HolderIdentity == "" {
		return "", nil
	}
	if e.isExpired(lease) {
		return "", nil
	}
	return *lease.Spec.HolderIdentity, nil
}

// isHeldByOther returns true if the lease is held by a different
// identity and has not expired.
func (e *Elector) isHeldByOther(lease *coordinationv1.Lease, identity string) bool {
	if lease.Spec.HolderIdentity == nil || *lease.Spec.HolderIdentity == "" {
		return false // no holder
	}
	if *lease.Spec.HolderIdentity == identity {
		return false // we hold it
	}
	return !e.isExpired(lease)
}

// isExpired returns true if the lease's renew time + duration is in the past.
func (e *Elector) isExpired(lease *coordinationv1.Lease) bool {
	if lease.Spec.RenewTime == nil || lease.Spec.LeaseDurationSeconds == nil {
		return true
	}
	renewTime := lease.Spec.RenewTime.Time
	dur := time.Duration(*lease.Spec.LeaseDurationSeconds) * time.Second
	return time.Now().UTC().After(renewTime.Add(dur))
}
