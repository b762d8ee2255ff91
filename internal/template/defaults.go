package template

// DefaultGenerator is the built-in generation prompt. The cheatsheet slot
// receives either the full memory rendering (cumulative mode) or the
// synthesized subset (retrieval mode).
const DefaultGenerator = `You are an expert problem solver. A cheatsheet of strategies, reusable code
snippets, and insights gathered from earlier problems is provided below.
Consult it before solving; reuse whatever applies.

CHEATSHEET:
[[CHEATSHEET]]

PROBLEM:
[[QUESTION]]

Reason step by step. When you are done, put the result on the last line in
exactly this form:

FINAL ANSWER: <answer>
`

// DefaultSynthesis is the built-in retrieval-mode prompt that condenses the
// selected entries into a cheatsheet tailored to one problem.
const DefaultSynthesis = `You are preparing a working cheatsheet for a specific problem. Below are
memory entries retrieved for it. Condense them into a short cheatsheet
holding only what is useful for this problem: concrete strategies, code
snippets, and pitfalls. Merge overlapping entries.

RETRIEVED ENTRIES:
[[CHEATSHEET]]

PROBLEM:
[[QUESTION]]

Reply with the tailored cheatsheet text and nothing else.
`

// DefaultCurator is the built-in curation prompt. The parser reads the
// section after the last NEW CHEATSHEET: marker, so the instructions pin
// the model to that exact framing.
const DefaultCurator = `You maintain a compact cheatsheet of problem-solving knowledge. Update it
with what the latest solved problem teaches.

Rules:
- Keep existing entries that remain useful; drop ones made obsolete.
- Distill the new solution into a reusable strategy or code snippet, not a
  transcript of this one problem.
- Merge entries that say the same thing; never store two copies.
- Separate entries with a line containing exactly three dashes: ---

PREVIOUS CHEATSHEET:
[[PREVIOUS_CHEATSHEET]]

QUESTION:
[[QUESTION]]

MODEL ANSWER:
[[MODEL_ANSWER]]

Write the full updated cheatsheet between the two markers below, exactly:

NEW CHEATSHEET:
<entries separated by --- lines>
END OF CHEATSHEET
`
