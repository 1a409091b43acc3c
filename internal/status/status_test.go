// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package status

import (
	"testing"
	"time"

	. "github.com/onsi/gomega"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/flux-subsystem/workload-engine/internal/condition"
)

func cond(typ, status, reason, ts string) condition.Condition {
	c := condition.Condition{Type: typ, Status: status, Reason: reason}
	t, _ := time.Parse(time.RFC3339, ts)
	c.LastTransitionTime = metav1.NewTime(t)
	return c
}

func TestDerive_Pending(t *testing.T) {
	g := NewWithT(t)
	m := Derive(nil)
	g.Expect(m.ExecutionStatus).To(Equal(Pending))
	g.Expect(m.WasEvicted).To(BeFalse())
	g.Expect(m.WasInadmissible).To(BeFalse())
}

func TestDerive_Executing(t *testing.T) {
	g := NewWithT(t)
	conditions := []condition.Condition{
		cond("QuotaReserved", "True", "QuotaReserved", "2025-01-01T00:00:00Z"),
		cond("Admitted", "True", "Admitted", "2025-01-01T00:00:01Z"),
	}
	m := Derive(conditions)
	g.Expect(m.ExecutionStatus).To(Equal(Executing))
	g.Expect(m.LastAdmissionTimestamp).NotTo(BeNil())
}

func TestDerive_Inadmissible(t *testing.T) {
	g := NewWithT(t)
	conditions := []condition.Condition{
		cond("QuotaReserved", "False", "Inadmissible", "2025-01-01T00:00:00Z"),
	}
	m := Derive(conditions)
	g.Expect(m.ExecutionStatus).To(Equal(Inadmissible))
	g.Expect(m.WasInadmissible).To(BeTrue())
}

func TestDerive_Succeeded_TakesPriorityOverAdmitted(t *testing.T) {
	g := NewWithT(t)
	conditions := []condition.Condition{
		cond("Admitted", "True", "Admitted", "2025-01-01T00:00:00Z"),
		cond("Finished", "True", "Succeeded", "2025-01-01T01:00:00Z"),
	}
	m := Derive(conditions)
	g.Expect(m.ExecutionStatus).To(Equal(Succeeded))
	g.Expect(m.TerminationTimestamp).NotTo(BeNil())
}

func TestDerive_Failed_TakesPriorityOverAdmitted(t *testing.T) {
	g := NewWithT(t)
	conditions := []condition.Condition{
		cond("Admitted", "True", "Admitted", "2025-01-01T00:00:00Z"),
		cond("Finished", "False", "Failed", "2025-01-01T01:00:00Z"),
	}
	m := Derive(conditions)
	g.Expect(m.ExecutionStatus).To(Equal(Failed))
}

func TestDerive_EvictedIsOrthogonalToExecutionStatus(t *testing.T) {
	g := NewWithT(t)
	conditions := []condition.Condition{
		cond("QuotaReserved", "True", "QuotaReserved", "2025-01-01T00:00:00Z"),
		cond("Evicted", "True", "Preempted", "2025-01-01T00:01:00Z"),
	}
	m := Derive(conditions)
	g.Expect(m.WasEvicted).To(BeTrue())
	g.Expect(m.ExecutionStatus).To(Equal(Pending))
}

func TestJobStatus_Terminal(t *testing.T) {
	g := NewWithT(t)
	g.Expect(Succeeded.Terminal()).To(BeTrue())
	g.Expect(Failed.Terminal()).To(BeTrue())
	g.Expect(Pending.Terminal()).To(BeFalse())
	g.Expect(Executing.Terminal()).To(BeFalse())
	g.Expect(Inadmissible.Terminal()).To(BeFalse())
}
