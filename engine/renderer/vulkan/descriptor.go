package vulkan

import (
	"fmt"
	"sort"

	vk "github.com/goki/vulkan"

	"github.com/davlio/ember/engine/core"
)

// DescriptorSetLayout is an immutable description of the bindings a set
// carries. Built once through its builder, then shared by every set allocated
// against it.
type DescriptorSetLayout struct {
	Handle   vk.DescriptorSetLayout
	bindings map[uint32]vk.DescriptorSetLayoutBinding
}

type DescriptorSetLayoutBuilder struct {
	context  *VulkanContext
	bindings map[uint32]vk.DescriptorSetLayoutBinding
}

func NewDescriptorSetLayoutBuilder(context *VulkanContext) *DescriptorSetLayoutBuilder {
	return &DescriptorSetLayoutBuilder{
		context:  context,
		bindings: make(map[uint32]vk.DescriptorSetLayoutBinding),
	}
}

// AddBinding registers one binding slot. Re-registering an index replaces the
// previous entry.
func (b *DescriptorSetLayoutBuilder) AddBinding(binding uint32, descriptorType vk.DescriptorType, stageFlags vk.ShaderStageFlags, count uint32) *DescriptorSetLayoutBuilder {
	b.bindings[binding] = vk.DescriptorSetLayoutBinding{
		Binding:         binding,
		DescriptorType:  descriptorType,
		DescriptorCount: count,
		StageFlags:      stageFlags,
	}
	return b
}

func (b *DescriptorSetLayoutBuilder) Build() (*DescriptorSetLayout, error) {
	if len(b.bindings) == 0 {
		return nil, fmt.Errorf("descriptor set layout requires at least one binding")
	}

	// Deterministic order regardless of registration order.
	setLayoutBindings := make([]vk.DescriptorSetLayoutBinding, 0, len(b.bindings))
	for _, binding := range b.bindings {
		setLayoutBindings = append(setLayoutBindings, binding)
	}
	sort.Slice(setLayoutBindings, func(i, j int) bool {
		return setLayoutBindings[i].Binding < setLayoutBindings[j].Binding
	})

	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(setLayoutBindings)),
		PBindings:    setLayoutBindings,
	}

	var handle vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(b.context.Device.LogicalDevice, &createInfo, b.context.Allocator, &handle); res != vk.Success {
		return nil, fmt.Errorf("failed to create descriptor set layout: %s", VulkanResultString(res))
	}

	bindings := make(map[uint32]vk.DescriptorSetLayoutBinding, len(b.bindings))
	for index, binding := range b.bindings {
		bindings[index] = binding
	}
	return &DescriptorSetLayout{
		Handle:   handle,
		bindings: bindings,
	}, nil
}

func (l *DescriptorSetLayout) Destroy(context *VulkanContext) {
	if l.Handle != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(context.Device.LogicalDevice, l.Handle, context.Allocator)
		l.Handle = vk.NullDescriptorSetLayout
	}
}

// descriptorBudget tracks the remaining capacity of a pool so exhaustion is
// reported as an error before the driver sees the allocation.
type descriptorBudget struct {
	remainingSets    uint32
	remainingPerType map[vk.DescriptorType]uint32
}

func newDescriptorBudget(maxSets uint32, poolSizes []vk.DescriptorPoolSize) descriptorBudget {
	perType := make(map[vk.DescriptorType]uint32, len(poolSizes))
	for _, size := range poolSizes {
		perType[size.Type] += size.DescriptorCount
	}
	return descriptorBudget{
		remainingSets:    maxSets,
		remainingPerType: perType,
	}
}

// reserve debits one set and the descriptors of every binding in the layout.
// All-or-nothing: on exhaustion nothing is debited. Counts are summed per type
// before the check, so a layout with several bindings of the same type cannot
// overdraw the budget.
func (db *descriptorBudget) reserve(layout *DescriptorSetLayout) error {
	if db.remainingSets == 0 {
		return fmt.Errorf("%w: no sets left", core.ErrDescriptorPoolExhausted)
	}
	required := make(map[vk.DescriptorType]uint32, len(layout.bindings))
	for _, binding := range layout.bindings {
		required[binding.DescriptorType] += binding.DescriptorCount
	}
	for descriptorType, count := range required {
		if db.remainingPerType[descriptorType] < count {
			return fmt.Errorf("%w: layout needs %d descriptors of type %d, %d left",
				core.ErrDescriptorPoolExhausted, count, descriptorType, db.remainingPerType[descriptorType])
		}
	}
	db.remainingSets--
	for descriptorType, count := range required {
		db.remainingPerType[descriptorType] -= count
	}
	return nil
}

func (db *descriptorBudget) release(layout *DescriptorSetLayout) {
	db.remainingSets++
	for _, binding := range layout.bindings {
		db.remainingPerType[binding.DescriptorType] += binding.DescriptorCount
	}
}

// DescriptorPool allocates descriptor sets from a fixed budget declared up
// front. Exceeding the budget fails with core.ErrDescriptorPoolExhausted.
type DescriptorPool struct {
	Handle vk.DescriptorPool
	budget descriptorBudget
}

func NewDescriptorPool(context *VulkanContext, maxSets uint32, poolSizes []vk.DescriptorPoolSize) (*DescriptorPool, error) {
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}

	var handle vk.DescriptorPool
	if res := vk.CreateDescriptorPool(context.Device.LogicalDevice, &createInfo, context.Allocator, &handle); res != vk.Success {
		return nil, fmt.Errorf("failed to create descriptor pool: %s", VulkanResultString(res))
	}

	return &DescriptorPool{
		Handle: handle,
		budget: newDescriptorBudget(maxSets, poolSizes),
	}, nil
}

func (p *DescriptorPool) Destroy(context *VulkanContext) {
	if p.Handle != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(context.Device.LogicalDevice, p.Handle, context.Allocator)
		p.Handle = vk.NullDescriptorPool
	}
}

// Allocate reserves budget for the layout, then allocates one set. A driver
// failure refunds the reservation.
func (p *DescriptorPool) Allocate(context *VulkanContext, layout *DescriptorSetLayout) (vk.DescriptorSet, error) {
	if err := p.budget.reserve(layout); err != nil {
		return vk.NullDescriptorSet, err
	}

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.Handle,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout.Handle},
	}

	sets := make([]vk.DescriptorSet, 1)
	if res := vk.AllocateDescriptorSets(context.Device.LogicalDevice, &allocInfo, &sets[0]); res != vk.Success {
		p.budget.release(layout)
		return vk.NullDescriptorSet, fmt.Errorf("failed to allocate descriptor set: %s", VulkanResultString(res))
	}
	return sets[0], nil
}

// DescriptorWriter collects buffer writes against a layout and flushes them to
// a freshly allocated set in one batched update. Every binding declared by the
// layout must be written before Build succeeds.
type DescriptorWriter struct {
	layout *DescriptorSetLayout
	pool   *DescriptorPool
	writes map[uint32]vk.WriteDescriptorSet
}

func NewDescriptorWriter(layout *DescriptorSetLayout, pool *DescriptorPool) *DescriptorWriter {
	return &DescriptorWriter{
		layout: layout,
		pool:   pool,
		writes: make(map[uint32]vk.WriteDescriptorSet),
	}
}

func isBufferDescriptorType(t vk.DescriptorType) bool {
	switch t {
	case vk.DescriptorTypeUniformBuffer, vk.DescriptorTypeStorageBuffer,
		vk.DescriptorTypeUniformBufferDynamic, vk.DescriptorTypeStorageBufferDynamic:
		return true
	}
	return false
}

// WriteBuffer stages a buffer write for the given binding. Fails when the
// layout never declared the binding or declared it with a non-buffer type.
func (w *DescriptorWriter) WriteBuffer(binding uint32, info vk.DescriptorBufferInfo) error {
	layoutBinding, ok := w.layout.bindings[binding]
	if !ok {
		return fmt.Errorf("%w: binding %d", core.ErrUnknownBinding, binding)
	}
	if !isBufferDescriptorType(layoutBinding.DescriptorType) {
		return fmt.Errorf("%w: binding %d has type %d, not a buffer type", core.ErrBindingTypeMismatch, binding, layoutBinding.DescriptorType)
	}

	w.writes[binding] = vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstBinding:      binding,
		DescriptorType:  layoutBinding.DescriptorType,
		DescriptorCount: 1,
		PBufferInfo:     []vk.DescriptorBufferInfo{info},
	}
	return nil
}

// missingBindings lists declared bindings without a staged write, in binding
// order.
func (w *DescriptorWriter) missingBindings() []uint32 {
	var missing []uint32
	for index := range w.layout.bindings {
		if _, ok := w.writes[index]; !ok {
			missing = append(missing, index)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}

// Build allocates a set from the pool and applies every staged write in one
// update call. A set with unwritten bindings would be invalid to bind, so an
// incomplete writer fails before allocating.
func (w *DescriptorWriter) Build(context *VulkanContext) (vk.DescriptorSet, error) {
	if missing := w.missingBindings(); len(missing) > 0 {
		return vk.NullDescriptorSet, fmt.Errorf("%w: bindings %v never written", core.ErrIncompleteWrite, missing)
	}

	set, err := w.pool.Allocate(context, w.layout)
	if err != nil {
		return vk.NullDescriptorSet, err
	}

	writes := make([]vk.WriteDescriptorSet, 0, len(w.writes))
	for _, write := range w.writes {
		write.DstSet = set
		writes = append(writes, write)
	}
	sort.Slice(writes, func(i, j int) bool { return writes[i].DstBinding < writes[j].DstBinding })

	vk.UpdateDescriptorSets(context.Device.LogicalDevice, uint32(len(writes)), writes, 0, nil)
	return set, nil
}
