package secretdetect

import "regexp"

// Pattern is a named secret shape.
type Pattern struct {
	Name  string
	Regex *regexp.Regexp
}

// DefaultPatterns returns the credential shapes that show up in tool output:
// provider API keys, cloud and forge tokens and private key headers.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{Name: "AWS Access Key ID", Regex: regexp.MustCompile(`(A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|AIPA|ANPA|ANVA|ASIA)[A-Z0-9]{16}`)},
		{Name: "Anthropic API Key", Regex: regexp.MustCompile(`sk-ant-api03-[a-zA-Z0-9_\-]{20,}`)},
		{Name: "OpenAI Project Key", Regex: regexp.MustCompile(`sk-proj-[a-zA-Z0-9_\-]{32,}`)},
		{Name: "OpenAI API Key", Regex: regexp.MustCompile(`sk-[a-zA-Z0-9]{32,}`)},
		{Name: "Google API Key", Regex: regexp.MustCompile(`AIza[0-9A-Za-z\-_]{35}`)},
		{Name: "GitHub Token", Regex: regexp.MustCompile(`gh[po]_[a-zA-Z0-9]{36}`)},
		{Name: "Slack Token", Regex: regexp.MustCompile(`xox[bp]-[0-9]{10,12}-[0-9]{10,12}-[a-zA-Z0-9\-]{24,}`)},
		{Name: "Private Key", Regex: regexp.MustCompile(`-----BEGIN (RSA |OPENSSH |EC |PGP )?PRIVATE KEY( BLOCK)?-----`)},
	}
}
