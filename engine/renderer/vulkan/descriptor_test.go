package vulkan

import (
	"errors"
	"testing"

	vk "github.com/goki/vulkan"

	"github.com/davlio/ember/engine/core"
)

func testLayout(bindings ...vk.DescriptorSetLayoutBinding) *DescriptorSetLayout {
	m := make(map[uint32]vk.DescriptorSetLayoutBinding, len(bindings))
	for _, b := range bindings {
		m[b.Binding] = b
	}
	return &DescriptorSetLayout{bindings: m}
}

func uniformBinding(index uint32) vk.DescriptorSetLayoutBinding {
	return vk.DescriptorSetLayoutBinding{
		Binding:         index,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
	}
}

func samplerBinding(index uint32) vk.DescriptorSetLayoutBinding {
	return vk.DescriptorSetLayoutBinding{
		Binding:         index,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
	}
}

func TestWriterRejectsUnknownBinding(t *testing.T) {
	w := NewDescriptorWriter(testLayout(uniformBinding(0)), nil)
	err := w.WriteBuffer(5, vk.DescriptorBufferInfo{})
	if !errors.Is(err, core.ErrUnknownBinding) {
		t.Fatalf("expected ErrUnknownBinding, got %v", err)
	}
}

func TestWriterRejectsNonBufferBinding(t *testing.T) {
	w := NewDescriptorWriter(testLayout(samplerBinding(0)), nil)
	err := w.WriteBuffer(0, vk.DescriptorBufferInfo{})
	if !errors.Is(err, core.ErrBindingTypeMismatch) {
		t.Fatalf("expected ErrBindingTypeMismatch, got %v", err)
	}
}

func TestWriterTracksMissingBindings(t *testing.T) {
	layout := testLayout(uniformBinding(0), uniformBinding(1), uniformBinding(2))
	w := NewDescriptorWriter(layout, nil)

	if err := w.WriteBuffer(1, vk.DescriptorBufferInfo{}); err != nil {
		t.Fatalf("WriteBuffer: %v", err)
	}

	missing := w.missingBindings()
	if len(missing) != 2 || missing[0] != 0 || missing[1] != 2 {
		t.Fatalf("missingBindings = %v, want [0 2]", missing)
	}

	if err := w.WriteBuffer(0, vk.DescriptorBufferInfo{}); err != nil {
		t.Fatalf("WriteBuffer: %v", err)
	}
	if err := w.WriteBuffer(2, vk.DescriptorBufferInfo{}); err != nil {
		t.Fatalf("WriteBuffer: %v", err)
	}
	if missing := w.missingBindings(); len(missing) != 0 {
		t.Fatalf("missingBindings = %v, want none", missing)
	}
}

func TestWriterRewriteReplacesStagedWrite(t *testing.T) {
	layout := testLayout(uniformBinding(0))
	w := NewDescriptorWriter(layout, nil)

	first := vk.DescriptorBufferInfo{Offset: 0, Range: 16}
	second := vk.DescriptorBufferInfo{Offset: 64, Range: 16}
	if err := w.WriteBuffer(0, first); err != nil {
		t.Fatalf("WriteBuffer: %v", err)
	}
	if err := w.WriteBuffer(0, second); err != nil {
		t.Fatalf("WriteBuffer: %v", err)
	}

	staged := w.writes[0].PBufferInfo
	if len(staged) != 1 || staged[0].Offset != 64 {
		t.Fatalf("rewrite must replace the staged info, got %+v", staged)
	}
}

func TestBudgetExhaustsSets(t *testing.T) {
	layout := testLayout(uniformBinding(0))
	budget := newDescriptorBudget(2, []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 10},
	})

	for i := 0; i < 2; i++ {
		if err := budget.reserve(layout); err != nil {
			t.Fatalf("reserve %d: %v", i, err)
		}
	}
	if err := budget.reserve(layout); !errors.Is(err, core.ErrDescriptorPoolExhausted) {
		t.Fatalf("expected ErrDescriptorPoolExhausted, got %v", err)
	}
}

func TestBudgetExhaustsDescriptorsPerType(t *testing.T) {
	layout := testLayout(uniformBinding(0), uniformBinding(1))
	budget := newDescriptorBudget(10, []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 3},
	})

	// First set takes two descriptors, leaving one: not enough for another.
	if err := budget.reserve(layout); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := budget.reserve(layout); !errors.Is(err, core.ErrDescriptorPoolExhausted) {
		t.Fatalf("expected ErrDescriptorPoolExhausted, got %v", err)
	}
}

func TestBudgetSumsBindingsOfSameType(t *testing.T) {
	// Two uniform bindings per set against a budget of 3: the first reserve
	// leaves 1, which no per-binding check alone would catch. The second must
	// fail without debiting, not wrap the counter around.
	layout := testLayout(uniformBinding(0), uniformBinding(1))
	budget := newDescriptorBudget(10, []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 3},
	})

	if err := budget.reserve(layout); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := budget.reserve(layout); !errors.Is(err, core.ErrDescriptorPoolExhausted) {
		t.Fatalf("expected ErrDescriptorPoolExhausted, got %v", err)
	}
	if remaining := budget.remainingPerType[vk.DescriptorTypeUniformBuffer]; remaining != 1 {
		t.Fatalf("failed reserve must leave the budget intact, remaining %d", remaining)
	}
}

func TestWriterBuildFailsOnIncompleteWrites(t *testing.T) {
	layout := testLayout(uniformBinding(0), uniformBinding(1))
	pool := &DescriptorPool{budget: newDescriptorBudget(4, []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 8},
	})}
	w := NewDescriptorWriter(layout, pool)

	if err := w.WriteBuffer(0, vk.DescriptorBufferInfo{}); err != nil {
		t.Fatalf("WriteBuffer: %v", err)
	}

	set, err := w.Build(nil)
	if !errors.Is(err, core.ErrIncompleteWrite) {
		t.Fatalf("expected ErrIncompleteWrite, got %v", err)
	}
	if set != vk.NullDescriptorSet {
		t.Fatalf("failed build must not return a set, got %v", set)
	}
	if pool.budget.remainingSets != 4 {
		t.Fatalf("failed build must not touch the pool, remaining sets %d", pool.budget.remainingSets)
	}
}

func TestBudgetReserveIsAllOrNothing(t *testing.T) {
	layout := testLayout(uniformBinding(0), samplerBinding(1))
	budget := newDescriptorBudget(10, []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 5},
		// No sampler capacity at all.
	})

	if err := budget.reserve(layout); !errors.Is(err, core.ErrDescriptorPoolExhausted) {
		t.Fatalf("expected ErrDescriptorPoolExhausted, got %v", err)
	}
	if budget.remainingSets != 10 {
		t.Fatalf("failed reserve must not debit sets, remaining %d", budget.remainingSets)
	}
	if budget.remainingPerType[vk.DescriptorTypeUniformBuffer] != 5 {
		t.Fatalf("failed reserve must not debit descriptors, remaining %d",
			budget.remainingPerType[vk.DescriptorTypeUniformBuffer])
	}
}

func TestBudgetReleaseRefunds(t *testing.T) {
	layout := testLayout(uniformBinding(0))
	budget := newDescriptorBudget(1, []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1},
	})

	if err := budget.reserve(layout); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	budget.release(layout)
	if err := budget.reserve(layout); err != nil {
		t.Fatalf("reserve after release: %v", err)
	}
}
