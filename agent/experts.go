package agent

import "google.golang.org/genai"

// DefaultModel is the Gemini model of every expert.
const DefaultModel = "gemini-2.5-pro"

func instruction(s string) *genai.Content {
	return &genai.Content{Parts: []*genai.Part{{Text: s}}}
}

// creates the facilitator
func newFacilitator(model string, experts ...*Expert) *Expert {
	return &Expert{
		Name:      "Facilitator",
		ModelName: model,
		Config: &genai.GenerateContentConfig{
			Tools: []*genai.Tool{
				{FunctionDeclarations: NewDeclaration(experts)},
			},
			SystemInstruction: instruction(`
			As a facilitator you are in charge of the conversation and solving the user's request.

			Learn about the expert's skill that you can get from the Tools to ask them questions.
			They are at your service and keep the context of your previous questions.

			The user follows a portfolio of Swedish and foreign stocks, valued in SEK.
			Devise a plan of questions to ask to each expert and come up with the best response to the user's request.
			The user will assume that you know about their stocks: check the portfolio first.

			Answer in markdown. You give information, not financial advice.
		`),
		},
		Library: NewLibrary(experts),
	}
}

// NewTrader returns the expert of markets and news, grounded with Google Search.
func NewTrader(model string) *Expert {
	return &Expert{
		Name: "Trader",
		Description: `This is an expert trader,
		very well aware of the stock markets, the listed companies and their latest news.
		Ask the Trader whenever you need recent or grounding information.`,
		ModelName: model,
		Config: &genai.GenerateContentConfig{
			Tools: []*genai.Tool{
				{GoogleSearch: &genai.GoogleSearch{}},
			},
			SystemInstruction: instruction(`
			You are an expert in trading, you can search and find about anything related to
			listed companies, their reports, markets and short sellers. You leverage Google Search to
			ground your assertions in a solid truth.
			You can get the latest news too, and you know how to relate them to the user's request.
			`),
		},
	}
}

// NewAccountant returns the expert of the user's portfolio, answering with tools.
func NewAccountant(model string, tools *Tools) *Expert {
	lib := tools.Functions()
	return &Expert{
		Name: "Accountant",
		Description: `This is the Accountant. They read the user's portfolio: holdings, live prices,
		capital flows and returns, recent transactions, correlations and short positions.`,
		ModelName: model,
		Config: &genai.GenerateContentConfig{
			Tools: []*genai.Tool{
				{FunctionDeclarations: NewDeclaration(lib)},
			},
			SystemInstruction: instruction(`
			You are an accountant in charge of the user's stock portfolio.
			You know how to use the Tools to extract relevant information about the portfolio and its returns.
			You are part of a team of experts, yours is everything about the user's portfolio. They might ask
			you questions in approximative language, figure out what they meant.
			Amounts are in SEK unless a currency is given.
			`),
		},
		Library: NewLibrary(lib),
	}
}
