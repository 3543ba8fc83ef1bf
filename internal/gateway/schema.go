package gateway

import (
	"fmt"

	"github.com/project-tktt/job-scout/internal/domain"
)

// listingPayload is the JSON shape the listing extraction model must return.
type listingPayload struct {
	JobPostings []domain.ListingCandidate `json:"job_postings"`
}

const listingSystemPrompt = `You are a structured-data extraction engine.
You are given the HTML content of a job listing page. Respond with a JSON
object of the form:
{"job_postings": [{"job_title": string, "job_link": string, "posted_date_iso": string, "constraints": string or null}]}
Return every job posting found on the page. Respond with JSON only.`

func listingUserPrompt(todayISO, content string) string {
	return fmt.Sprintf(`Extract all job postings from this page.

For each job, provide its title (job_title),
the direct URL to the job details (job_link),
the posting date (posted_date_iso),
and any constraints mentioned (constraints), such as country restrictions (e.g., "USA only").

Convert all posting dates to YYYY-MM-DD format.
For example, if a job was posted 'today' (assuming today is %s), 'yesterday', or '2 days ago', calculate and use the YYYY-MM-DD format.
If a date like '15.03.2024' is given, convert it to '2024-03-15'.

Ensure job_link is a full URL.

Page content:
%s`, todayISO, content)
}

const detailSystemPrompt = `You are a structured-data extraction engine.
You are given the HTML content of a single job posting page. Respond with a
JSON object of the form:
{"region": string or null, "role": string or null, "experience": string or null, "company": string or null, "job_type": string or null, "salary": string or null}
Respond with JSON only.`

func detailUserPrompt(content string) string {
	return fmt.Sprintf(`Extract the following job details:
- region: The location/region where the job is based
- role: The full job description or role details
- experience: Any mentioned experience requirements
- company: The company name
- job_type: The type of employment (e.g., full-time, contract)
- salary: Any salary or compensation information

Return null for any fields that are not found in the content.

Page content:
%s`, content)
}
