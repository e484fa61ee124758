package scanning

// billScanPrompt is the shared prompt used by all LLM providers for scanning bill pages
const billScanPrompt = `You are analyzing one page of a medical or pharmacy bill. Carefully read all text in the image and extract every billed line item on this page.

For each line item extract:
1. **description**: The item, medicine, test or service name exactly as printed.
2. **quantity**: The number of units billed. Use 1 if the row has no quantity column.
3. **rate**: The price per unit.
4. **amount**: The net amount billed for the row, as printed.

Also extract, only if printed on this page:
- **page_subtotal**: A subtotal or "carried forward" figure for this page.
- **final_total**: The final total, grand total, net payable or amount due of the whole bill.

Return ONLY valid JSON in this exact format:
{
  "line_items": [
    {"description": "Item name", "quantity": 1, "rate": 0.00, "amount": 0.00}
  ],
  "page_subtotal": null,
  "final_total": null
}

Important:
- Numbers must be numbers (not strings), without currency symbols or thousands separators
- Do not include subtotal, tax, discount or total rows as line items
- Do not invent rows; if the page has no line items return an empty list
- If you cannot find a total, use null for that field
- Do not include any text before or after the JSON
- Do not use markdown code blocks`
