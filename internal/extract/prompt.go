package extract

import (
	"fmt"
	"time"

	"github.com/kalambet/aide/internal/record"
)

const systemPrompt = `You turn a person's free-form text into structured JSON records for their personal assistant. Output ONLY valid JSON. No prose, no markdown, no code fences.`

const financeTemplate = `Today is %s.

Extract one bookkeeping entry from the text below and return a single JSON object with these fields:
- "item": what the money was for, short (e.g. "lunch", "salary")
- "amount": the sum as a number. Expenses are negative and income is positive. If it is unclear, treat it as an expense and make it negative.
- "type": "expense" or "income"
- "category": a short category such as "food", "transport", "shopping", "housing", "salary"
- "date": the date as YYYY-MM-DD. Default to today (%s).

Text: %q`

const calendarTemplate = `The current time is %s.

Extract every calendar event from the text below and return a JSON array. Each element is an object with:
- "title": short event title
- "start": start time as YYYY-MM-DDTHH:MM:SS, 24-hour clock
- "end": end time in the same format, or "" if unknown
- "location": place, or ""
- "all_day": true only when no time of day is given

Always use a strict 24-hour clock. Examples: "afternoon 3" is 15:00:00, "evening 8" is 20:00:00, "9 in the morning" is 09:00:00.
Resolve relative dates such as "tomorrow" or "next Friday" against the current time.
Return an array even when there is only one event.

Text: %q`

const classifyTemplate = `The current time is %s.

Decide whether the text below is a calendar event, a bookkeeping entry, or a note, and return one JSON object:
{"kind": "calendar" | "finance" | "note", "payload": ...}

For "calendar", payload is an array of events, each {"title", "start", "end", "location", "all_day"} with times as YYYY-MM-DDTHH:MM:SS on a strict 24-hour clock ("afternoon 3" is 15:00:00, "evening 8" is 20:00:00).
For "finance", payload is {"item", "amount", "type", "category", "date"}. Expenses are negative and income is positive; if unclear, treat it as an expense. "type" is "expense" or "income". Dates are YYYY-MM-DD, default %s.
For "note", payload is {"content", "tags"} where tags is a short array of keywords.

Text: %q`

func financePrompt(text string, now time.Time) string {
	today := now.Format(record.DateLayout)
	return fmt.Sprintf(financeTemplate, today, today, text)
}

func calendarPrompt(text string, now time.Time) string {
	return fmt.Sprintf(calendarTemplate, now.Format("2006-01-02 15:04 Monday"), text)
}

func classifyPrompt(text string, now time.Time) string {
	return fmt.Sprintf(classifyTemplate, now.Format("2006-01-02 15:04 Monday"), now.Format(record.DateLayout), text)
}
