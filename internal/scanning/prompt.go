package scanning

const systemPrompt = `You are a receipt analysis expert. Extract detailed information from grocery receipt images. Be precise with numbers and read every line item.`

// structuredPrompt asks for a single JSON object
const structuredPrompt = `Analyze this receipt image and return ONLY a JSON object with these fields:

{
  "items": [
    {"name": "Whole milk 1L", "price": 129, "quantity": 2, "confidence": 0.95}
  ],
  "language": "en",
  "totalAmount": 1234,
  "date": "YYYY-MM-DD",
  "storeName": "Store name"
}

Rules:
- price is the unit price in cents (an integer), totalAmount is the receipt total in cents
- quantity is the number of units bought, 1 when not printed
- confidence is how sure you are about the item, between 0 and 1
- language is the ISO 639-1 code of the receipt language
- use null for date or storeName when they are not visible
- do not include any text before or after the JSON`

// freeTextPrompt asks for one fact per line
const freeTextPrompt = `Analyze this receipt image and answer using ONLY lines in this format:

STORE: <store name>
DATE: <YYYY-MM-DD>
LANGUAGE: <ISO 639-1 code>
TOTAL: <receipt total in cents>
ITEM: <name> | <quantity> | <unit price in cents> | <confidence 0-1>

Write one ITEM line per product on the receipt. Leave out STORE or DATE when they are not visible.
Do not add any other text.`
