package skill

import "agent-foundry/internal/domain"

// Builtin returns the skills shipped with the foundry.
func Builtin() []domain.Skill {
	return []domain.Skill{
		{
			ID:          domain.SkillDeepReasoning,
			Name:        "Deep Reasoning",
			Description: "Enable chain-of-thought processing for complex logic.",
			Category:    domain.CategoryIntelligence,
			Instruction: `CRITICAL SOP: Before answering, you must perform a step-by-step reasoning process. Output "Thought: [Your reasoning]" before your final answer.`,
		},
		{
			ID:          "code_gen",
			Name:        "Code Expert",
			Description: "Advanced technical expertise for multi-language coding.",
			Category:    domain.CategoryTechnical,
		},
		{
			ID:           "data_engineer",
			Name:         "Data Engineering Specialist",
			Description:  "Expert in data transformation, cleaning, and mapping.",
			Category:     domain.CategoryTechnical,
			Instruction:  "CRITICAL SOP: precision is key. 1. If receiving raw data, use [data_normalizer] FIRST to standardize formats (especially dates and names). 2. Then use [mapping_gateway] if the user needs to transform schema. 3. Finally, use [excel_suite] to output the result if requested.",
			BundledTools: []string{"excel_suite", "data_normalizer", "mapping_gateway"},
		},
		{
			ID:           "financial_analyst",
			Name:         "Financial Analyst",
			Description:  "Expert financial capability with automated regulatory checks.",
			Category:     domain.CategoryIntelligence,
			Instruction:  "CRITICAL SOP: When handling financial data, YOU MUST first use [excel_suite] to standardize the dataset, and then IMMEDIATELY use [starcheck] to perform risk assessment. Do not skip the risk assessment step.",
			BundledTools: []string{"excel_suite", "starcheck"},
		},
		{
			ID:           "compliance_officer",
			Name:         "Compliance Officer",
			Description:  "Ensures all business actions adhere to regulatory rules.",
			Category:     domain.CategoryIntelligence,
			Instruction:  "CRITICAL SOP: For any transaction or profile review: 1. Run [starcheck] to get the risk score. 2. Feed the score and details into [rule_engine]. 3. Output the final Compliance Verdict (PASS/FAIL) based on the rule engine result.",
			BundledTools: []string{"rule_engine", "starcheck"},
		},
		{
			ID:           "creative_vision",
			Name:         "Creative Vision",
			Description:  "Sophisticated image and visual concept generation.",
			Category:     domain.CategoryCreative,
			BundledTools: []string{"vision_ai"},
		},
		{
			ID:           "email_drafter",
			Name:         "Communication Specialist",
			Description:  "Expert in professional communication with strict draft-before-send protocol.",
			Category:     domain.CategoryCreative,
			Instruction:  `CRITICAL SOP: When asked to send an email, DO NOT generate the tool call immediately. 1. First, generate the full Subject and Body Draft and show it to the user. 2. Ask "Ready to send?". 3. ONLY after the user explicitly confirms, generate the {"tool": "email.send", ...} JSON.`,
			BundledTools: []string{"email.send", "comm_hub"},
		},
		{
			ID:           "security_login",
			Name:         "Security Access Manager",
			Description:  "Specialized skill for handling login, authentication, and access control flows.",
			Category:     domain.CategoryTechnical,
			Instruction:  `CRITICAL SOP: You are the Security Manager. When asked to perform any login or access action, you MUST first output: "[Security Check] Verifying User Identity...". Do not proceed without this check.`,
			BundledTools: []string{"email.send"},
		},
	}
}

// PlatformTools returns the installable platform tool catalog.
func PlatformTools() []domain.PlatformTool {
	const kyx = "KYX Platform"
	return []domain.PlatformTool{
		{ID: domain.ToolWebSearch, Name: "Google Search", Description: "Live web grounding and real-time news retrieval.", Provider: "Google"},
		{ID: domain.ToolGoogleMaps, Name: "Spatial Intelligence", Description: "Location services, routing and place discovery.", Provider: "Google Cloud"},
		{ID: "excel_suite", Name: "Excel Processor Suite", Description: "Enterprise Excel handling: Multi-sheet processing, XML filling, and template adaptation.", Provider: kyx},
		{ID: "vision_ai", Name: "Vision Intelligence", Description: "Advanced computer vision: Face comparison, liveness check, and OCR (Text/MRZ) recognition.", Provider: kyx},
		{ID: "data_normalizer", Name: "Data Normalizer", Description: "Japanese data specialist: Furigana conversion and standardization (11 modules/69 operations).", Provider: kyx},
		{ID: "rule_engine", Name: "Business Rule Engine", Description: "Logic orchestration: Rules execution, retail check, and structured payload validation.", Provider: kyx},
		{ID: "mapping_gateway", Name: "Mapping Gateway", Description: "Configuration sync: Data mapping extraction, diff comparison, and config generation.", Provider: kyx},
		{ID: "comm_hub", Name: "Communication Hub", Description: "Unified messaging: Email, Gmail integration, and multi-channel notification push.", Provider: kyx},
		{ID: "starcheck", Name: "StarCheck Analysis", Description: "Risk & Insight: Feature extraction and proprietary credit scoring analysis engine.", Provider: kyx},
	}
}
