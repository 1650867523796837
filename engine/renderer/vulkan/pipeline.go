package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/davlio/ember/engine/core"
)

type VulkanPipeline struct {
	Handle vk.Pipeline
	Layout vk.PipelineLayout
}

// PipelineConfig carries everything a graphics pipeline needs. Shader code is
// passed as opaque SPIR-V blobs; no reflection is performed on them.
type PipelineConfig struct {
	Renderpass           *VulkanRenderpass
	VertexShaderCode     []byte
	FragmentShaderCode   []byte
	Stride               uint32
	Attributes           []vk.VertexInputAttributeDescription
	DescriptorSetLayouts []vk.DescriptorSetLayout
	PushConstantRanges   []vk.PushConstantRange
	EnableDepth          bool
	IsWireframe          bool
}

// bytecode reinterprets a SPIR-V blob as the word slice the API expects. The
// blob length must be a multiple of four.
func bytecode(code []byte) ([]uint32, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, fmt.Errorf("SPIR-V blob has invalid length %d", len(code))
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&code[0])), len(code)/4), nil
}

func createShaderModule(context *VulkanContext, code []byte) (vk.ShaderModule, error) {
	words, err := bytecode(code)
	if err != nil {
		return vk.NullShaderModule, err
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    words,
	}
	var module vk.ShaderModule
	if res := vk.CreateShaderModule(context.Device.LogicalDevice, &createInfo, context.Allocator, &module); res != vk.Success {
		return vk.NullShaderModule, fmt.Errorf("failed to create shader module: %s", VulkanResultString(res))
	}
	return module, nil
}

// NewGraphicsPipeline builds a triangle-list graphics pipeline with dynamic
// viewport and scissor, so window resizes never force a pipeline rebuild.
func NewGraphicsPipeline(context *VulkanContext, config *PipelineConfig) (*VulkanPipeline, error) {
	vertModule, err := createShaderModule(context, config.VertexShaderCode)
	if err != nil {
		return nil, fmt.Errorf("vertex stage: %w", err)
	}
	defer vk.DestroyShaderModule(context.Device.LogicalDevice, vertModule, context.Allocator)

	fragModule, err := createShaderModule(context, config.FragmentShaderCode)
	if err != nil {
		return nil, fmt.Errorf("fragment stage: %w", err)
	}
	defer vk.DestroyShaderModule(context.Device.LogicalDevice, fragModule, context.Allocator)

	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: vertModule,
			PName:  VulkanSafeString("main"),
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: fragModule,
			PName:  VulkanSafeString("main"),
		},
	}

	// Placeholder values; viewport and scissor are dynamic state and set per
	// frame by the recorder.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports:    []vk.Viewport{{Width: 1, Height: 1, MaxDepth: 1.0}},
		ScissorCount:  1,
		PScissors:     []vk.Rect2D{{Extent: vk.Extent2D{Width: 1, Height: 1}}},
	}

	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                vk.CullModeFlags(vk.CullModeBackBit),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}
	if config.IsWireframe {
		rasterizerCreateInfo.PolygonMode = vk.PolygonModeLine
	}

	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:  vk.False,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		StencilTestEnable: vk.False,
	}
	if config.EnableDepth {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthWriteEnable = vk.True
		depthStencil.DepthCompareOp = vk.CompareOpLess
	}

	colorBlendAttachmentState := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vk.True,
		SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
		DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorSrcAlpha,
		DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		AlphaBlendOp:        vk.BlendOpAdd,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}

	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttachmentState},
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	if config.Stride > 0 {
		bindingDescription := vk.VertexInputBindingDescription{
			Binding:   0,
			Stride:    config.Stride,
			InputRate: vk.VertexInputRateVertex,
		}
		vertexInputInfo.VertexBindingDescriptionCount = 1
		vertexInputInfo.PVertexBindingDescriptions = []vk.VertexInputBindingDescription{bindingDescription}
		vertexInputInfo.VertexAttributeDescriptionCount = uint32(len(config.Attributes))
		vertexInputInfo.PVertexAttributeDescriptions = config.Attributes
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(config.DescriptorSetLayouts)),
		PSetLayouts:            config.DescriptorSetLayouts,
		PushConstantRangeCount: uint32(len(config.PushConstantRanges)),
		PPushConstantRanges:    config.PushConstantRanges,
	}

	var layout vk.PipelineLayout
	if res := vk.CreatePipelineLayout(context.Device.LogicalDevice, &pipelineLayoutCreateInfo, context.Allocator, &layout); res != vk.Success {
		return nil, fmt.Errorf("failed to create pipeline layout: %s", VulkanResultString(res))
	}

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              layout,
		RenderPass:          config.Renderpass.Handle,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	res := vk.CreateGraphicsPipelines(
		context.Device.LogicalDevice,
		vk.NullPipelineCache,
		1,
		[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo},
		context.Allocator,
		pipelines,
	)
	if !VulkanResultIsSuccess(res) {
		vk.DestroyPipelineLayout(context.Device.LogicalDevice, layout, context.Allocator)
		return nil, fmt.Errorf("failed to create graphics pipeline: %s", VulkanResultString(res))
	}

	core.LogDebug("graphics pipeline created")
	return &VulkanPipeline{
		Handle: pipelines[0],
		Layout: layout,
	}, nil
}

func (pipeline *VulkanPipeline) Destroy(context *VulkanContext) {
	if pipeline.Handle != vk.NullPipeline {
		vk.DestroyPipeline(context.Device.LogicalDevice, pipeline.Handle, context.Allocator)
		pipeline.Handle = vk.NullPipeline
	}
	if pipeline.Layout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(context.Device.LogicalDevice, pipeline.Layout, context.Allocator)
		pipeline.Layout = vk.NullPipelineLayout
	}
}
