package skills

import "strings"

// Config is the tagger's immutable rule set: canonical skill name to
// case-insensitive regex (applied to lowercased text), the discovery
// denylist, the 3-letter acronym allowlist and the tracking-code
// prefix exceptions. It is plain data so deployments can swap it
// without touching the pipeline.
type Config struct {
	Patterns      map[string]string
	Denylist      []string
	AcronymAllow  []string
	KnownPrefixes []string

	denySet  map[string]bool
	allowSet map[string]bool
}

func (c *Config) index() {
	c.denySet = make(map[string]bool, len(c.Denylist))
	for _, w := range c.Denylist {
		c.denySet[strings.ToUpper(w)] = true
	}
	c.allowSet = make(map[string]bool, len(c.AcronymAllow))
	for _, w := range c.AcronymAllow {
		c.allowSet[strings.ToUpper(w)] = true
	}
}

func (c *Config) denylisted(upper string) bool {
	if c.denySet == nil {
		c.index()
	}
	return c.denySet[upper]
}

func (c *Config) allowedAcronym(upper string) bool {
	if c.allowSet == nil {
		c.index()
	}
	return c.allowSet[upper]
}

func (c *Config) knownPrefix(upper string) bool {
	for _, p := range c.KnownPrefixes {
		if strings.HasPrefix(upper, strings.ToUpper(p)) {
			return true
		}
	}
	return false
}

// DefaultConfig is the rule set tuned on DACH data-role postings.
func DefaultConfig() Config {
	return Config{
		Patterns: map[string]string{
			"Python":           `python`,
			"SQL":              `sql`,
			"R":                `\br\b`,
			"Power BI":         `power\s?bi`,
			"Tableau":          `tableau`,
			"Excel":            `excel`,
			"Machine Learning": `machine\s?learning|\bml\b`,
			"Deep Learning":    `deep\s?learning`,
			"Azure":            `azure`,
			"AWS":              `\baws\b|amazon\s?web`,
			"GCP":              `\bgcp\b|google\s?cloud`,
			"SAP":              `\bsap\b`,
			"Airflow":          `airflow`,
			"Spark":            `spark`,
			"Pandas":           `pandas`,
			"MLOps":            `mlops`,
			"Docker":           `docker`,
			"Kubernetes":       `kubernetes|k8s`,
			"PyTorch":          `pytorch`,
			"TensorFlow":       `tensorflow`,
			"English":          `english|englisch`,
			"German":           `german|deutsch`,
			"ETL":              `\betl\b`,
			"NoSQL":            `nosql|mongodb|cassandra`,
			"CI/CD":            `ci/cd|jenkins|gitlab\s?ci`,
			"Git":              `\bgit\b|github|gitlab`,
			"Communication":    `communication|kommunikations`,
			"Problem Solving":  `problem\s?solving`,
		},
		Denylist: []string{
			// English boilerplate
			"THE", "AND", "FOR", "WITH", "FROM", "THIS", "THAT", "YOUR",
			"WILL", "TEAM", "DATA", "WORK", "YOU", "ARE", "OUR", "NEW",
			"ALL", "CAN", "HAVE", "MORE", "ABOUT", "JOIN", "APPLY", "NOW",
			// German boilerplate
			"WIR", "SIE", "UND", "MIT", "DAS", "DIESE", "EINE", "ODER",
			"SIND", "IHRE", "DER", "DIE", "DEN", "DEM", "BEI", "AUF",
			"ZUM", "ZUR", "ALS", "AUCH", "EIN", "VON", "NACH", "DICH",
			"UNS", "IHR", "JETZT", "MEHR",
			// Job-ad meta words
			"HOME", "OFFICE", "JOB", "JOBS", "TASKS", "PROFILE", "OFFER",
			"BENEFITS", "REMOTE", "HYBRID", "VOLLZEIT", "TEILZEIT",
			"BEWERBUNG", "STELLE", "KARRIERE", "GEHALT", "URLAUB",
			// Countries and cities show up capitalized constantly
			"GERMANY", "DEUTSCHLAND", "AUSTRIA", "SWITZERLAND", "BERLIN",
			"HAMBURG", "MUNICH", "WIEN", "EUROPE", "DACH",
		},
		AcronymAllow: []string{
			"AWS", "GCP", "SQL", "ETL", "ELT", "SAP", "API", "BI", "CRM",
			"ERP", "CSS", "PHP", "IOS", "DWH", "KPI", "NLP", "LLM", "GIS",
		},
		KnownPrefixes: []string{"ISO", "UTF", "SAP", "IEEE"},
	}
}
