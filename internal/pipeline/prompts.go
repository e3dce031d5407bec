package pipeline

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"segment-research/internal/common/config"
)

// Prompt is a fully rendered instruction for one stage.
type Prompt struct {
	Text      string
	Title     string
	Truncated bool
	// InputLength is the rune length of the stage input before truncation.
	InputLength int
}

// PromptBuilder renders stage prompts. It is pure: the same stage and input
// always give the same prompt.
type PromptBuilder struct {
	serviceName string
	helperLabel string
	inputLimit  int
}

func NewPromptBuilder(cfg config.PromptConfig) *PromptBuilder {
	b := &PromptBuilder{
		serviceName: strings.TrimSpace(cfg.ServiceName),
		helperLabel: strings.TrimSpace(cfg.HelperLabel),
		inputLimit:  cfg.SalesNavInputLimit,
	}
	if b.serviceName == "" {
		b.serviceName = "fractional CFO services"
	}
	if b.helperLabel == "" {
		b.helperLabel = "CFO's"
	}
	if b.inputLimit <= 0 {
		b.inputLimit = 20000
	}
	return b
}

// Build renders the prompt for stage. Missing input yields ErrInvalidInput
// and no prompt.
func (b *PromptBuilder) Build(stage Stage, in StageInput) (Prompt, error) {
	switch stage {
	case StageSegments:
		return b.segments(in)
	case StageEnhanced:
		return b.enhanced(in)
	case StageSalesNav:
		return b.salesNav(in)
	case StageDeepSegment:
		return b.deepSegment(in)
	default:
		return Prompt{}, fmt.Errorf("%w: no prompt for stage %q", ErrInvalidInput, stage)
	}
}

func (b *PromptBuilder) segments(in StageInput) (Prompt, error) {
	industry := strings.TrimSpace(in.Industry)
	if industry == "" {
		return Prompt{}, fmt.Errorf("%w: industry is required", ErrInvalidInput)
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("You are a B2B market research strategist. Identify the most promising target market segments for %s based on the industry or ideal customer profile below.", b.serviceName))
	parts = append(parts, fmt.Sprintf("\nIndustry / ICP: %s", industry))
	parts = append(parts, "\nFORMAT YOUR RESPONSE AS NUMBERED SECTIONS, one per segment, using keycap emoji numbers:")
	parts = append(parts, "1️⃣ [Segment Name]")
	parts = append(parts, fmt.Sprintf("Why they need %s: [2-3 sentences]", b.serviceName))
	parts = append(parts, "Typical company size and stage: [one line]")
	parts = append(parts, "Key financial pain points:")
	parts = append(parts, "👉 [Pain point]")
	parts = append(parts, "👉 [Pain point]")
	parts = append(parts, "👉 [Pain point]")
	parts = append(parts, "\n2️⃣ [Next Segment Name]")
	parts = append(parts, "[...same format for 5 segments in total...]")
	parts = append(parts, "\nIMPORTANT INSTRUCTIONS:")
	parts = append(parts, "- Return exactly 5 segments ordered from most to least promising")
	parts = append(parts, "- Start immediately with \"1️⃣\" and the first segment name")
	parts = append(parts, "- Do NOT include any introductory text, disclaimers, or conclusions")
	parts = append(parts, "- Do NOT wrap the response in markdown code blocks")

	return Prompt{
		Text:        strings.Join(parts, "\n"),
		InputLength: utf8.RuneCountInString(industry),
	}, nil
}

func (b *PromptBuilder) enhanced(in StageInput) (Prompt, error) {
	segments := strings.TrimSpace(in.Segments)
	if segments == "" {
		return Prompt{}, fmt.Errorf("%w: segments text is required", ErrInvalidInput)
	}
	industry := strings.TrimSpace(in.Industry)

	var parts []string
	parts = append(parts, fmt.Sprintf("You are a senior B2B market analyst. Deepen the market segment analysis below for %s.", b.serviceName))
	if industry != "" {
		parts = append(parts, fmt.Sprintf("\nOriginal industry / ICP: %s", industry))
	}
	parts = append(parts, "\nSEGMENTS TO ENHANCE:")
	parts = append(parts, segments)
	parts = append(parts, "\nFor every segment keep its number and name, then expand it using this format:")
	parts = append(parts, "1️⃣ [Segment Name]")
	parts = append(parts, "Segment Overview: [4-6 sentences on business model, growth stage and financial complexity]")
	parts = append(parts, "Decision-Makers: [roles that would hire the service]")
	parts = append(parts, "Key Challenges:")
	parts = append(parts, "👉 [Challenge]—[explanation with a concrete business consequence]")
	parts = append(parts, "👉 [Challenge]—[explanation with a concrete business consequence]")
	parts = append(parts, "👉 [Challenge]—[explanation with a concrete business consequence]")
	parts = append(parts, "👉 [Challenge]—[explanation with a concrete business consequence]")
	parts = append(parts, fmt.Sprintf("How %s Help: [3-4 sentences]", b.serviceName))
	parts = append(parts, "Buying Triggers:")
	parts = append(parts, "🔹 [Trigger event]")
	parts = append(parts, "🔹 [Trigger event]")
	parts = append(parts, "🔹 [Trigger event]")
	parts = append(parts, "\nIMPORTANT INSTRUCTIONS:")
	parts = append(parts, "- Keep the same segments in the same order")
	parts = append(parts, "- Use the exact emoji formatting shown above (1️⃣, 👉, 🔹)")
	parts = append(parts, "- Do NOT include any introductory text, disclaimers, or conclusions")
	parts = append(parts, "- Do NOT wrap the response in markdown code blocks")

	return Prompt{
		Text:        strings.Join(parts, "\n"),
		InputLength: utf8.RuneCountInString(segments),
	}, nil
}

func (b *PromptBuilder) salesNav(in StageInput) (Prompt, error) {
	source := in.Enhanced
	if strings.TrimSpace(source) == "" && in.SegmentInfo != nil && in.SegmentInfo.Kind == RawTextKind {
		source = in.SegmentInfo.Content
	}
	if strings.TrimSpace(source) == "" {
		return Prompt{}, fmt.Errorf("%w: enhanced segment text is required", ErrInvalidInput)
	}

	length := utf8.RuneCountInString(source)
	truncated := false
	if length > b.inputLimit {
		source = truncateRunes(source, b.inputLimit)
		truncated = true
	}

	text := strings.NewReplacer(
		"{{service}}", b.serviceName,
		"{{input}}", source,
	).Replace(salesNavTemplate)

	return Prompt{Text: text, Truncated: truncated, InputLength: length}, nil
}

func (b *PromptBuilder) deepSegment(in StageInput) (Prompt, error) {
	if in.SegmentInfo == nil {
		return Prompt{}, fmt.Errorf("%w: segment information is required", ErrInvalidInput)
	}
	info := *in.SegmentInfo
	if err := info.validate(); err != nil {
		return Prompt{}, err
	}

	title := "🔎 🔎 🔎 MARKET RESEARCH 🔎 🔎 🔎"
	if name := info.DisplayName(); name != "" {
		title = fmt.Sprintf("🔎 🔎 🔎 MARKET RESEARCH - %s 🔎 🔎 🔎", name)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are an empathetic B2B Researcher capable of deeply understanding and embodying the Ideal Customer Profile (ICP) for %s.\n\n", b.serviceName)
	sb.WriteString("## Your Task\nAnalyze the ICP provided below and generate a comprehensive market research profile following the exact structure below. Use the information to identify the most relevant and impactful insights.\n\n")
	sb.WriteString("## Analysis Requirements\nProvide exactly 5 items per category. There is a guide below to help you write each item.\n")
	for _, c := range researchCategories {
		fmt.Fprintf(&sb, "\n### %s (%s)\n", c.heading, c.purpose)
		for i, q := range c.guide {
			fmt.Fprintf(&sb, "  %s %d - %s\n", c.item, i+1, q)
		}
	}

	sb.WriteString("\n## Response Format\n\n")
	fmt.Fprintf(&sb, "  %s\n", title)
	for _, c := range researchCategories {
		fmt.Fprintf(&sb, "\n  %s %s %s\n\n", c.emoji, c.heading, c.emoji)
		fmt.Fprintf(&sb, "  1️⃣ [%s 1 title]\n", c.item)
		fmt.Fprintf(&sb, "  [A comprehensive explanation of the %s. %s Use paragraph and/or bullet points.]\n", strings.ToLower(c.item), c.requirement)
		fmt.Fprintf(&sb, "  💡 How %s Can Help\n", b.helperLabel)
		fmt.Fprintf(&sb, "  [Comprehensively discuss how %s services %s. Use paragraph and/or bullet points.]\n\n", b.helperLabel, c.help)
		fmt.Fprintf(&sb, "  [*Repeat the format above for the remaining 4 %s*]\n", strings.ToLower(c.plural))
	}

	fmt.Fprintf(&sb, "\n\n## ICP:\n%s\n\n", info.Content)
	sb.WriteString("Important notes:\n")
	sb.WriteString("- Follow the exact structure shown in the template with precise emoji placement\n")
	fmt.Fprintf(&sb, "- Explanations must include both the issue/need AND how %s specifically address it\n", b.serviceName)
	sb.WriteString("- Ensure consistent sentence structure and formatting across all sections\n")
	sb.WriteString("- DO NOT include introductions, disclaimers, or conclusions\n")
	sb.WriteString("- Maintain exact spacing shown in the template\n")

	return Prompt{
		Text:        sb.String(),
		Title:       title,
		InputLength: utf8.RuneCountInString(info.Content),
	}, nil
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

type researchCategory struct {
	heading     string
	emoji       string
	item        string
	plural      string
	purpose     string
	requirement string
	help        string
	guide       [5]string
}

var researchCategories = []researchCategory{
	{
		heading:     "FEARS",
		emoji:       "⚠️",
		item:        "Fear",
		plural:      "fears",
		purpose:     "the deep-seated fears that drive the decision-making process of the target audience",
		requirement: "Must include real-world business impact.",
		help:        "address it",
		guide: [5]string{
			"What keeps your ideal customer up at night regarding their business?",
			"What are the worst-case scenarios they imagine could happen to their company?",
			"How do they perceive potential threats to their job security or business stability?",
			"What industry changes or market trends do they fear the most?",
			"How do they feel about the possibility of making a wrong decision in their role?",
		},
	},
	{
		heading:     "PAINS",
		emoji:       "⚙️",
		item:        "Pain",
		plural:      "pains",
		purpose:     "the specific problems and challenges the target audience faces regularly",
		requirement: "Must include real-world negative consequences or financial impact.",
		help:        "address it",
		guide: [5]string{
			"What are the biggest daily frustrations your ideal customer experiences in their role?",
			"What tasks or processes do they find most time-consuming or inefficient?",
			"How do they describe their main challenges when talking to peers or colleagues?",
			"What negative experiences have they had with similar products or services in the past?",
			"How do their current problems affect their ability to achieve their business goals?",
		},
	},
	{
		heading:     "OBJECTIONS",
		emoji:       "⛔",
		item:        "Objection",
		plural:      "objections",
		purpose:     "the reasons why the target audience might hesitate to buy or engage with the service",
		requirement: "Must include real-world client concerns.",
		help:        "counter it with concrete benefits",
		guide: [5]string{
			"What are the primary reasons your ideal customer might be skeptical about the service?",
			"How do they evaluate the risks versus the benefits of adopting a new solution?",
			"What previous experiences with other providers might make them wary of trying your solution?",
			"What financial or budgetary concerns do they have regarding your offering?",
			"How do they perceive the difficulty of integrating the service into their existing workflows?",
		},
	},
	{
		heading:     "GOALS",
		emoji:       "🎯",
		item:        "Goal",
		plural:      "goals",
		purpose:     "the primary objectives and aspirations that drive the target audience's actions",
		requirement: "Must include desired real-world outcomes.",
		help:        "help attain the goal",
		guide: [5]string{
			"What are the top three goals your ideal customer aims to achieve in the next year?",
			"How do they measure success in their role or business?",
			"What long-term visions or ambitions do they have for their company?",
			"What are the immediate milestones they are working towards?",
			"How do they prioritize their goals in the context of their daily responsibilities?",
		},
	},
	{
		heading:     "VALUES",
		emoji:       "💎",
		item:        "Value",
		plural:      "values",
		purpose:     "the core values that influence the target audience's decision-making process",
		requirement: "Must align the value to real-world business decisions.",
		help:        "help preserve that value",
		guide: [5]string{
			"What ethical considerations are most important to your ideal customer when choosing a provider?",
			"How do they define quality and value in a product or service?",
			"What company culture aspects do they value in their own organization?",
			"How do they prefer to build relationships with vendors and partners?",
			"What do they value most in their business relationships (e.g., transparency, reliability, innovation)?",
		},
	},
	{
		heading:     "DECISION-MAKING PROCESSES",
		emoji:       "🔄",
		item:        "Process",
		plural:      "processes",
		purpose:     "how the target audience makes purchasing decisions",
		requirement: "Must identify key stakeholders and actions.",
		help:        "fit in or improve that process",
		guide: [5]string{
			"What steps do they typically follow when evaluating a new product or service?",
			"Who else is involved in the decision-making process within their company?",
			"What criteria are most important to them when selecting a solution?",
			"How do they gather and assess information before making a decision?",
			"What external resources (reviews, testimonials, case studies) do they rely on during the decision-making process?",
		},
	},
	{
		heading:     "INFLUENCES",
		emoji:       "🔊",
		item:        "Influence",
		plural:      "influences",
		purpose:     "the key factors and individuals that influence the target audience's choices",
		requirement: "Must identify who/what shapes decisions and provide a specific marketing approach.",
		help:        "leverage this influence",
		guide: [5]string{
			"Who are the thought leaders or industry experts your ideal customer trusts the most?",
			"What publications, blogs, or websites do they frequently read for industry news and insights?",
			"How do they engage with their professional network to seek advice or recommendations?",
			"What role do customer reviews and testimonials play in their purchasing decisions?",
			"How do industry events, conferences, and webinars influence their perceptions and decisions?",
		},
	},
	{
		heading:     "COMMUNICATION PREFERENCES",
		emoji:       "📱",
		item:        "Preference",
		plural:      "preferences",
		purpose:     "how the target audience prefers to receive and interact with marketing messages",
		requirement: "Must include channel preferences and specific content recommendations.",
		help:        "aid, improve or leverage this preference",
		guide: [5]string{
			"What communication channels do they use most frequently (email, social media, phone, etc.)?",
			"How do they prefer to receive information about new products or services?",
			"What type of content (articles, videos, infographics) do they find most engaging and useful?",
			"How often do they like to be contacted by potential vendors?",
			"What tone and style of communication do they respond to best (formal, casual, informative, etc.)?",
		},
	},
}

const salesNavTemplate = `You are a specialized LinkedIn Sales Navigator outreach strategist with deep expertise in B2B targeting and account-based marketing. Your task is to transform the segment information below into a structured LinkedIn Sales Navigator targeting strategy for {{service}}.

FORMAT YOUR RESPONSE AS A JSON ARRAY OF OBJECTS, where each object represents a segment with two attributes, namely name and content:
[
  {
    "name": "segment name here",
    "content":
      "
        Why This Segment?
        [3-5 sentences explaining why this segment needs {{service}}. Provide specific business context, industry challenges, and financial pain points. Detail how their size, growth stage, and business model create a need for sophisticated leadership without the cost of a full-time hire.]

        Key Challenges:
        👉 [Challenge 1]—[Detailed explanation of the challenge with specific examples and business implications]
        👉 [Challenge 2]—[Detailed explanation of the challenge with specific examples and business implications]
        👉 [Challenge 3]—[Detailed explanation of the challenge with specific examples and business implications]
        👉 [Challenge 4]—[Detailed explanation of the challenge with specific examples and business implications]

        🎯 Sales Navigator Filters:
        ✅ Job Titles (Business Decision-Makers & Leaders):
        [List 20-30 job titles, one per line, focusing on business owners, executives, and operational leadership who would decide on hiring {{service}}. Include multiple variants of similar roles (Owner, Co-Owner, Founder, Co-Founder, etc.)]

        ✅ Industry:
        [List 3-5 industry categories, one per line]

        ✅ Company Headcount:
        [Specify employee range using LinkedIn's standard brackets: 11-50, 51-200, 201-500, etc.]

        ✅ Company Type:
        [List company types, one per line]

        ✅ Keywords in Company Name:
        [List relevant keywords in quotation marks]

        ✅ Boolean Search Query:
        [Provide a sample boolean search string using OR operators]

        Best Intent Data Signals
        🔹 [Signal 1] (Detailed explanation with specific business implications)
        🔹 [Signal 2] (Detailed explanation with specific business implications)
        🔹 [Signal 3] (Detailed explanation with specific business implications)
        🔹 [Signal 4] (Detailed explanation with specific business implications)
      "
  },
  {...same format above for the next segments}
]

IMPORTANT INSTRUCTIONS:
- Format your ENTIRE response as a valid JSON array that can be parsed by a strict JSON parser
- Do NOT include any text before or after the JSON
- Do NOT wrap the JSON in markdown code blocks
- Maintain the exact structure shown above
- Use the exact emoji formatting shown above (1️⃣, 👉, 🎯, ✅, 🔹)
- Do NOT include any introductory text, disclaimers, or conclusions
- Extract and transform information from the provided segment analysis
- Focus on creating practical Sales Navigator targeting parameters
- For Job Titles: do NOT include roles that the service would replace, since those positions would not hire it. Focus on the business leaders and owners who make the decision.
- Include a diverse range of job title variants to maximize the total addressable market
- Provide in-depth, detailed explanations for "Why This Segment?" and "Key Challenges" sections
- End after completing the last segment with no closing remarks

{{input}}
`
